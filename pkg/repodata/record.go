// Package repodata models conda repository metadata: individual package
// records, per-subdirectory documents, and the queryable index built
// from them.
//
// Records are immutable once loaded. The curation pipeline never
// deletes records from the index; it marks them removed in a separate
// set and physical removal happens once, at render time. The original
// JSON of every record is retained so surviving records render back
// byte-for-byte.
package repodata

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/repocull/repocull/pkg/version"
)

// Key uniquely identifies a record: filenames are unique within a
// subdirectory but may repeat across them.
type Key struct {
	Subdir   string `json:"subdir"`
	Filename string `json:"filename"`
}

func (k Key) String() string { return k.Subdir + "/" + k.Filename }

// PackageRecord is one package entry from a repodata document.
type PackageRecord struct {
	Name          string
	VersionStr    string
	Version       version.Version
	Build         string
	BuildNumber   uint64
	Subdir        string
	Depends       []string
	Constrains    []string
	Features      string
	TrackFeatures []string
	Filename      string

	raw json.RawMessage
}

// Key returns the record's unique (subdir, filename) identity.
func (r *PackageRecord) Key() Key {
	return Key{Subdir: r.Subdir, Filename: r.Filename}
}

// Raw returns the record's verbatim source JSON.
func (r *PackageRecord) Raw() json.RawMessage { return r.raw }

// MalformedRecordError reports a single unparsable record. The record
// is dropped and the load continues; these surface as diagnostics, not
// failures.
type MalformedRecordError struct {
	Subdir   string
	Filename string
	Err      error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record %s/%s: %v", e.Subdir, e.Filename, e.Err)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }

// stringList accepts both JSON encodings seen in the wild for
// track_features: a list of strings or a single space/comma separated
// string.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("expected string or list of strings")
	}
	*l = strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
	return nil
}

// rawRecord is the JSON shape of one record inside "packages" or
// "packages.conda".
type rawRecord struct {
	Name          string     `json:"name"`
	Version       string     `json:"version"`
	Build         *string    `json:"build"`
	BuildNumber   uint64     `json:"build_number"`
	Subdir        string     `json:"subdir"`
	Depends       []string   `json:"depends"`
	Constrains    []string   `json:"constrains"`
	Features      string     `json:"features"`
	TrackFeatures stringList `json:"track_features"`
}

// parseRecord converts one raw JSON record. Missing name, version, or
// build fields and unparsable versions are malformed.
func parseRecord(subdir, filename string, raw json.RawMessage) (*PackageRecord, *MalformedRecordError) {
	fail := func(err error) (*PackageRecord, *MalformedRecordError) {
		return nil, &MalformedRecordError{Subdir: subdir, Filename: filename, Err: err}
	}

	var rr rawRecord
	if err := json.Unmarshal(raw, &rr); err != nil {
		return fail(err)
	}
	if rr.Name == "" {
		return fail(fmt.Errorf("missing required field %q", "name"))
	}
	if rr.Version == "" {
		return fail(fmt.Errorf("missing required field %q", "version"))
	}
	if rr.Build == nil {
		return fail(fmt.Errorf("missing required field %q", "build"))
	}
	v, err := version.Parse(rr.Version)
	if err != nil {
		return fail(err)
	}
	if rr.Subdir == "" {
		rr.Subdir = subdir
	}

	return &PackageRecord{
		Name:          rr.Name,
		VersionStr:    rr.Version,
		Version:       v,
		Build:         *rr.Build,
		BuildNumber:   rr.BuildNumber,
		Subdir:        rr.Subdir,
		Depends:       rr.Depends,
		Constrains:    rr.Constrains,
		Features:      rr.Features,
		TrackFeatures: rr.TrackFeatures,
		Filename:      filename,
		raw:           raw,
	}, nil
}
