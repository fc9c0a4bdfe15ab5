// Package solve defines the compatibility oracle interface the
// curation pipeline depends on, plus a small built-in solver.
//
// The pipeline never embeds solving logic: it only asks "does a
// mutually satisfiable selection exist for these requests over this
// candidate pool?" and interprets the verdict. Any solver implementing
// the Solver interface is substitutable; the built-in backtracking
// implementation is sized for the tiny universes the compatibility
// stage constructs (one candidate name plus the anchors), not for
// general dependency resolution.
package solve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/repocull/repocull/pkg/matchspec"
	"github.com/repocull/repocull/pkg/repodata"
)

// ErrUnsatisfiable is the verdict that no selection can satisfy the
// requests. It is a normal outcome, not a failure: the compatibility
// stage turns it into a removal. Any other error from a Solver is an
// oracle failure and fatal to the run.
var ErrUnsatisfiable = errors.New("unsatisfiable")

// Request asks for at least one record of Name satisfying Spec. A nil
// Spec accepts any record of the name.
type Request struct {
	Name string
	Spec *matchspec.Spec
}

// Selection maps each requested name to the record chosen for it.
type Selection map[string]*repodata.PackageRecord

// Solver is the external compatibility oracle contract.
type Solver interface {
	// Solve returns a satisfying selection over the candidate pool, or
	// an error wrapping ErrUnsatisfiable when provably none exists.
	Solve(ctx context.Context, requests []Request, pool []*repodata.PackageRecord) (Selection, error)
}

// Backtracking is the built-in Solver: depth-first assignment of one
// record per requested name with pairwise constraint checks between
// assigned records. Constraints naming packages outside the pool are
// treated as satisfied; the pool defines the universe.
type Backtracking struct {
	specs *matchspec.Cache
}

// NewBacktracking creates the built-in solver. The cache may be shared
// with the closure engine; pass nil to use a private one.
func NewBacktracking(specs *matchspec.Cache) *Backtracking {
	if specs == nil {
		specs = matchspec.NewCache(1024)
	}
	return &Backtracking{specs: specs}
}

func (b *Backtracking) Solve(ctx context.Context, requests []Request, pool []*repodata.PackageRecord) (Selection, error) {
	if len(requests) == 0 {
		return Selection{}, nil
	}

	byName := make(map[string][]*repodata.PackageRecord)
	for _, rec := range pool {
		byName[rec.Name] = append(byName[rec.Name], rec)
	}

	// Merge requests per name, preserving first-seen order.
	var names []string
	seen := make(map[string]bool)
	specsFor := make(map[string][]*matchspec.Spec)
	for _, req := range requests {
		if !seen[req.Name] {
			seen[req.Name] = true
			names = append(names, req.Name)
		}
		if req.Spec != nil {
			specsFor[req.Name] = append(specsFor[req.Name], req.Spec)
		}
	}

	// Per-name candidates narrowed by the request specs themselves.
	candidates := make([][]*repodata.PackageRecord, len(names))
	for i, name := range names {
		var list []*repodata.PackageRecord
		for _, rec := range byName[name] {
			ok := true
			for _, spec := range specsFor[name] {
				if !spec.Matches(rec) {
					ok = false
					break
				}
			}
			if ok {
				list = append(list, rec)
			}
		}
		if len(list) == 0 {
			return nil, b.unsat(requests, fmt.Sprintf("no candidate for %s", name))
		}
		candidates[i] = list
	}

	requested := make(map[string]bool, len(names))
	for _, name := range names {
		requested[name] = true
	}

	picked := make(Selection, len(names))
	if b.assign(ctx, names, candidates, requested, picked, 0) {
		return picked, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, b.unsat(requests, "no mutually satisfiable selection")
}

// assign tries every candidate for names[depth], keeping only picks
// that stay pairwise consistent with earlier picks.
func (b *Backtracking) assign(ctx context.Context, names []string, candidates [][]*repodata.PackageRecord, requested map[string]bool, picked Selection, depth int) bool {
	if ctx.Err() != nil {
		return false
	}
	if depth == len(names) {
		return true
	}
	name := names[depth]
	for _, rec := range candidates[depth] {
		if !b.consistent(rec, requested, picked) {
			continue
		}
		picked[name] = rec
		if b.assign(ctx, names, candidates, requested, picked, depth+1) {
			return true
		}
		delete(picked, name)
	}
	return false
}

// consistent checks rec against every already-picked record in both
// directions: rec's depends/constrains on picked names, and picked
// records' depends/constrains on rec's name.
func (b *Backtracking) consistent(rec *repodata.PackageRecord, requested map[string]bool, picked Selection) bool {
	if !b.accepts(rec, requested, picked) {
		return false
	}
	trial := Selection{rec.Name: rec}
	for _, other := range picked {
		if !b.accepts(other, map[string]bool{rec.Name: true}, trial) {
			return false
		}
	}
	return true
}

// accepts reports whether rec's constraint strings are compatible with
// the picks for the names in scope. Constraints on names outside scope
// are ignored; an unparsable constraint counts as unsatisfiable.
func (b *Backtracking) accepts(rec *repodata.PackageRecord, scope map[string]bool, picked Selection) bool {
	for _, group := range [][]string{rec.Depends, rec.Constrains} {
		for _, raw := range group {
			spec, err := b.specs.Parse(raw)
			if err != nil {
				return false
			}
			if !scope[spec.Name] {
				continue
			}
			other, ok := picked[spec.Name]
			if !ok {
				continue // not assigned yet; checked when it is
			}
			if !spec.Matches(other) {
				return false
			}
		}
	}
	return true
}

func (b *Backtracking) unsat(requests []Request, reason string) error {
	parts := make([]string, len(requests))
	for i, req := range requests {
		if req.Spec != nil {
			parts[i] = req.Spec.String()
		} else {
			parts[i] = req.Name
		}
	}
	return fmt.Errorf("solve [%s]: %s: %w", strings.Join(parts, ", "), reason, ErrUnsatisfiable)
}
