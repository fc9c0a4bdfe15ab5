// Package cull implements the curation engine: the primary filter
// stage, the anchor-compatibility stage, the orphan-closure fixpoint,
// and the runner that drives them over a repodata index.
//
// All stages share one RemovalSet. Records are only ever marked
// removed, never deleted, and the set grows monotonically until the
// renderer materializes the survivors.
package cull

import (
	"sort"
	"sync"

	"github.com/repocull/repocull/pkg/repodata"
)

// Reason tags why a record was removed.
type Reason string

const (
	ReasonPolicyMismatch Reason = "policy-mismatch"
	ReasonSuperseded     Reason = "superseded"
	ReasonPrerelease     Reason = "prerelease"
	ReasonBannedFeature  Reason = "banned-feature"
	ReasonIncompatible   Reason = "incompatible"
	ReasonOrphaned       Reason = "orphaned"
	ReasonVirtualPackage Reason = "virtual-package"
)

// Removal is one removed record with its reason and a human-readable
// detail for explain output.
type Removal struct {
	Key    repodata.Key `json:"key"`
	Name   string       `json:"name"`
	Reason Reason       `json:"reason"`
	Detail string       `json:"detail,omitempty"`
}

// RemovalSet is the shared, monotonically growing set of removed
// records. Safe for concurrent insertion; duplicate insertion of the
// same key is idempotent and the first reason wins.
type RemovalSet struct {
	mu       sync.RWMutex
	removals map[repodata.Key]Removal
}

// NewRemovalSet creates an empty removal set.
func NewRemovalSet() *RemovalSet {
	return &RemovalSet{removals: make(map[repodata.Key]Removal)}
}

// Add marks a record removed. It returns true when the key was newly
// added and false for a duplicate, which is not an error.
func (s *RemovalSet) Add(rec *repodata.PackageRecord, reason Reason, detail string) bool {
	key := rec.Key()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.removals[key]; ok {
		return false
	}
	s.removals[key] = Removal{Key: key, Name: rec.Name, Reason: reason, Detail: detail}
	return true
}

// Contains reports whether the record is marked removed.
func (s *RemovalSet) Contains(key repodata.Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.removals[key]
	return ok
}

// Keep is the renderer predicate: true for records that survived.
func (s *RemovalSet) Keep(key repodata.Key) bool { return !s.Contains(key) }

// Len returns the number of removed records.
func (s *RemovalSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.removals)
}

// Snapshot returns a point-in-time copy of the removed key set. Closure
// passes evaluate against a snapshot so one pass's result is
// independent of worker scheduling order.
func (s *RemovalSet) Snapshot() map[repodata.Key]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(map[repodata.Key]bool, len(s.removals))
	for key := range s.removals {
		snap[key] = true
	}
	return snap
}

// Removals returns every removal sorted by (subdir, filename), a stable
// order for reports and explain output.
func (s *RemovalSet) Removals() []Removal {
	s.mu.RLock()
	out := make([]Removal, 0, len(s.removals))
	for _, rem := range s.removals {
		out = append(out, rem)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Subdir != out[j].Key.Subdir {
			return out[i].Key.Subdir < out[j].Key.Subdir
		}
		return out[i].Key.Filename < out[j].Key.Filename
	})
	return out
}

// CountByReason tallies removals per reason tag.
func (s *RemovalSet) CountByReason() map[Reason]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[Reason]int)
	for _, rem := range s.removals {
		counts[rem.Reason]++
	}
	return counts
}
