package repodata

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"
)

// ChannelInfo is the repodata "info" object.
type ChannelInfo struct {
	Subdir  string `json:"subdir,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
}

// Document holds all parsed records of one subdirectory together with
// the document-level metadata needed to render it back out.
type Document struct {
	Subdir          string
	Info            *ChannelInfo
	Packages        map[string]*PackageRecord // .tar.bz2 records by filename
	CondaPackages   map[string]*PackageRecord // .conda records by filename
	Removed         []string
	RepodataVersion uint64
}

// Len returns the number of parsed records in the document.
func (d *Document) Len() int { return len(d.Packages) + len(d.CondaPackages) }

// LoadError reports a structurally invalid repodata document. Unlike a
// malformed individual record it is fatal to the subdirectory's load.
type LoadError struct {
	Subdir string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading repodata for %s: %v", e.Subdir, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// rawDocument is the top-level JSON shape of a repodata document.
type rawDocument struct {
	Info            *ChannelInfo               `json:"info"`
	Packages        map[string]json.RawMessage `json:"packages"`
	CondaPackages   map[string]json.RawMessage `json:"packages.conda"`
	Removed         []string                   `json:"removed"`
	RepodataVersion uint64                     `json:"repodata_version"`
}

// Load parses one subdirectory's repodata document. Individual bad
// records are dropped and returned as diagnostics; a structurally
// invalid document returns a *LoadError. Record parsing is spread over
// a fixed-size worker pool; workers <= 0 selects GOMAXPROCS.
func Load(subdir string, data []byte, workers int) (*Document, []*MalformedRecordError, error) {
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, &LoadError{Subdir: subdir, Err: err}
	}

	doc := &Document{
		Subdir:          subdir,
		Info:            raw.Info,
		Packages:        make(map[string]*PackageRecord, len(raw.Packages)),
		CondaPackages:   make(map[string]*PackageRecord, len(raw.CondaPackages)),
		Removed:         raw.Removed,
		RepodataVersion: raw.RepodataVersion,
	}

	diags := parseInto(subdir, raw.Packages, doc.Packages, workers)
	diags = append(diags, parseInto(subdir, raw.CondaPackages, doc.CondaPackages, workers)...)

	// Stable diagnostic order regardless of worker scheduling.
	sort.Slice(diags, func(i, j int) bool { return diags[i].Filename < diags[j].Filename })
	return doc, diags, nil
}

// LoadFile reads and parses a repodata document from disk.
func LoadFile(subdir, path string, workers int) (*Document, []*MalformedRecordError, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, &LoadError{Subdir: subdir, Err: err}
	}
	return Load(subdir, data, workers)
}

// parseInto parses every raw record into out on a worker pool. The only
// shared mutable state is guarded by a single mutex around map writes.
func parseInto(subdir string, raw map[string]json.RawMessage, out map[string]*PackageRecord, workers int) []*MalformedRecordError {
	if len(raw) == 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	type item struct {
		filename string
		data     json.RawMessage
	}
	work := make(chan item)

	var mu sync.Mutex
	var diags []*MalformedRecordError
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range work {
				rec, diag := parseRecord(subdir, it.filename, it.data)
				mu.Lock()
				if diag != nil {
					diags = append(diags, diag)
				} else {
					out[it.filename] = rec
				}
				mu.Unlock()
			}
		}()
	}
	for filename, data := range raw {
		work <- item{filename: filename, data: data}
	}
	close(work)
	wg.Wait()
	return diags
}
