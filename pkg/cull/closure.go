package cull

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/repocull/repocull/pkg/matchspec"
	"github.com/repocull/repocull/pkg/repodata"
)

// ErrNonConvergence is returned when the closure loop is still finding
// orphans after the configured maximum number of passes.
var ErrNonConvergence = errors.New("orphan closure did not converge")

// Diagnostic is a non-fatal finding surfaced by a run, such as a
// dependency string that could not be parsed.
type Diagnostic struct {
	Key     repodata.Key `json:"key"`
	Message string       `json:"message"`
}

// closureResult carries what one Close call did.
type closureResult struct {
	passes  int
	removed int
	diags   []Diagnostic
}

// Close removes records whose dependencies can no longer be satisfied
// by any surviving record, repeating whole-set passes until a fixpoint.
// Each pass evaluates against a snapshot of the removal set, so the
// outcome is independent of worker scheduling. Dependencies naming
// packages absent from the index are treated as satisfiable; a
// dependency string that fails to parse makes its record unsatisfiable
// and is reported once as a diagnostic.
func Close(ctx context.Context, idx *repodata.Index, set *RemovalSet, specs *matchspec.Cache, maxPasses, workers int) (closureResult, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if maxPasses <= 0 {
		maxPasses = 1
	}

	var res closureResult
	seenDiag := make(map[string]bool)

	alive := make([]*repodata.PackageRecord, 0, idx.Len())
	for _, rec := range idx.Records() {
		if set.Keep(rec.Key()) {
			alive = append(alive, rec)
		}
	}

	for pass := 1; ; pass++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if pass > maxPasses {
			return res, fmt.Errorf("%w after %d passes", ErrNonConvergence, maxPasses)
		}
		res.passes = pass

		snap := set.Snapshot()

		type verdict struct {
			rec    *repodata.PackageRecord
			detail string
			diags  []Diagnostic
		}
		jobs := make(chan *repodata.PackageRecord)
		out := make(chan verdict)

		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for rec := range jobs {
					detail, diags := unsatisfied(rec, idx, specs, snap)
					if detail == "" && len(diags) == 0 {
						continue
					}
					out <- verdict{rec: rec, detail: detail, diags: diags}
				}
			}()
		}
		go func() {
			for _, rec := range alive {
				jobs <- rec
			}
			close(jobs)
			wg.Wait()
			close(out)
		}()

		// Buffer removals until the pass completes, then merge.
		var buffered []verdict
		for v := range out {
			buffered = append(buffered, v)
		}

		removed := 0
		doomed := make(map[repodata.Key]bool)
		for _, v := range buffered {
			for _, d := range v.diags {
				if !seenDiag[d.Message] {
					seenDiag[d.Message] = true
					res.diags = append(res.diags, d)
				}
			}
			if v.detail == "" {
				continue
			}
			if set.Add(v.rec, ReasonOrphaned, v.detail) {
				removed++
				doomed[v.rec.Key()] = true
			}
		}
		res.removed += removed
		if removed == 0 {
			return res, nil
		}

		next := alive[:0]
		for _, rec := range alive {
			if !doomed[rec.Key()] {
				next = append(next, rec)
			}
		}
		alive = next
	}
}

// unsatisfied reports the detail for the first dependency of rec with
// no surviving candidate, or "" when all are satisfiable. Unparsable
// dependency strings count as unsatisfiable and produce a diagnostic.
func unsatisfied(rec *repodata.PackageRecord, idx *repodata.Index, specs *matchspec.Cache, removed map[repodata.Key]bool) (string, []Diagnostic) {
	var diags []Diagnostic
	for _, raw := range rec.Depends {
		spec, err := specs.Parse(raw)
		if err != nil {
			diags = append(diags, Diagnostic{
				Key:     rec.Key(),
				Message: fmt.Sprintf("unparsable dependency %q: %v", raw, err),
			})
			return fmt.Sprintf("dependency %q cannot be parsed", raw), diags
		}
		if !idx.HasName(spec.Name) {
			continue
		}
		found := false
		for _, cand := range idx.Candidates(spec.Name) {
			if removed[cand.Key()] {
				continue
			}
			if spec.Matches(cand) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Sprintf("dependency %q has no surviving candidate", raw), diags
		}
	}
	return "", diags
}
