package repodata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// renderDocument mirrors the input document shape but carries the
// verbatim raw JSON of each surviving record, so records round-trip
// byte-for-byte. encoding/json emits map keys in sorted order, which
// makes the output deterministic.
type renderDocument struct {
	Info            *ChannelInfo               `json:"info"`
	Packages        map[string]json.RawMessage `json:"packages"`
	CondaPackages   map[string]json.RawMessage `json:"packages.conda"`
	Removed         []string                   `json:"removed"`
	RepodataVersion uint64                     `json:"repodata_version"`
}

// renderVersion is stamped on every output document (CEP-15).
const renderVersion = 2

// Render materializes the subset of doc for which keep returns true.
// If the source document declares a base URL it is preserved verbatim;
// otherwise channelAlias plus the subdir is substituted. Given the same
// document and keep predicate the output is byte-identical across runs.
func Render(doc *Document, channelAlias string, keep func(Key) bool) ([]byte, error) {
	out := renderDocument{
		Packages:        make(map[string]json.RawMessage, len(doc.Packages)),
		CondaPackages:   make(map[string]json.RawMessage, len(doc.CondaPackages)),
		Removed:         append([]string(nil), doc.Removed...),
		RepodataVersion: renderVersion,
	}
	sort.Strings(out.Removed)
	if out.Removed == nil {
		out.Removed = []string{}
	}

	info := ChannelInfo{Subdir: doc.Subdir}
	if doc.Info != nil {
		info = *doc.Info
	}
	if info.BaseURL == "" {
		info.BaseURL = strings.TrimSuffix(channelAlias, "/") + "/" + doc.Subdir
	}
	out.Info = &info

	for filename, rec := range doc.Packages {
		if keep(rec.Key()) {
			out.Packages[filename] = rec.Raw()
		}
	}
	for filename, rec := range doc.CondaPackages {
		if keep(rec.Key()) {
			out.CondaPackages[filename] = rec.Raw()
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("rendering repodata for %s: %w", doc.Subdir, err)
	}
	return data, nil
}

// WriteFile renders doc and writes it to <outDir>/<subdir>/repodata.json.
// Nothing is written when rendering fails.
func WriteFile(outDir string, doc *Document, channelAlias string, keep func(Key) bool) (string, error) {
	data, err := Render(doc, channelAlias, keep)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(outDir, doc.Subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "repodata.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
