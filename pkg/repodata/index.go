package repodata

import (
	"sort"
)

// Index owns every record across the loaded subdirectories and exposes
// the name-to-candidates grouping the filter and closure stages query.
// The index itself is immutable after construction; removal state lives
// outside it so iteration order stays stable and record references stay
// valid for the whole pipeline.
type Index struct {
	docs    map[string]*Document
	records []*PackageRecord
	byName  map[string][]*PackageRecord
}

// NewIndex builds an index over the given documents. Records are
// ordered by (name, version, filename), so candidates for one name form
// a contiguous, version-sorted run.
func NewIndex(docs ...*Document) *Index {
	idx := &Index{
		docs:   make(map[string]*Document, len(docs)),
		byName: make(map[string][]*PackageRecord),
	}

	total := 0
	for _, doc := range docs {
		idx.docs[doc.Subdir] = doc
		total += doc.Len()
	}
	idx.records = make([]*PackageRecord, 0, total)
	for _, doc := range docs {
		for _, rec := range doc.Packages {
			idx.records = append(idx.records, rec)
		}
		for _, rec := range doc.CondaPackages {
			idx.records = append(idx.records, rec)
		}
	}

	sort.Slice(idx.records, func(i, j int) bool {
		a, b := idx.records[i], idx.records[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if c := a.Version.Compare(b.Version); c != 0 {
			return c < 0
		}
		if a.Filename != b.Filename {
			return a.Filename < b.Filename
		}
		return a.Subdir < b.Subdir
	})

	for _, rec := range idx.records {
		idx.byName[rec.Name] = append(idx.byName[rec.Name], rec)
	}
	return idx
}

// Records returns all records in index order. Callers must not mutate
// the returned slice.
func (idx *Index) Records() []*PackageRecord { return idx.records }

// Candidates returns every record with the given name, in version
// order, whether or not it has been marked removed. Filter stages
// consult the removal set separately.
func (idx *Index) Candidates(name string) []*PackageRecord { return idx.byName[name] }

// HasName reports whether any record of the given name exists in any
// subdirectory. The closure engine treats constraints on names entirely
// absent from the index as satisfied.
func (idx *Index) HasName(name string) bool {
	_, ok := idx.byName[name]
	return ok
}

// Len returns the total record count.
func (idx *Index) Len() int { return len(idx.records) }

// Names returns all package names in sorted order.
func (idx *Index) Names() []string {
	names := make([]string, 0, len(idx.byName))
	for name := range idx.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Document returns the loaded document for a subdirectory, or nil.
func (idx *Index) Document(subdir string) *Document { return idx.docs[subdir] }

// Subdirs returns the loaded subdirectory names in sorted order.
func (idx *Index) Subdirs() []string {
	subdirs := make([]string, 0, len(idx.docs))
	for subdir := range idx.docs {
		subdirs = append(subdirs, subdir)
	}
	sort.Strings(subdirs)
	return subdirs
}
