package cull

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/repocull/repocull/pkg/matchspec"
	"github.com/repocull/repocull/pkg/observability"
	"github.com/repocull/repocull/pkg/policy"
	"github.com/repocull/repocull/pkg/repodata"
	"github.com/repocull/repocull/pkg/solve"
)

// Runner drives a full curation run over a repodata index.
type Runner struct {
	Policy *policy.Policy
	Solver solve.Solver
	Specs  *matchspec.Cache
	Logger *log.Logger
}

// NewRunner builds a runner with a backtracking solver and a shared
// matchspec cache. The logger defaults to a silent one.
func NewRunner(pol *policy.Policy, logger *log.Logger) *Runner {
	specs := matchspec.NewCache(4096)
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Runner{
		Policy: pol,
		Solver: solve.NewBacktracking(specs),
		Specs:  specs,
		Logger: logger,
	}
}

// StageStats records what one stage did.
type StageStats struct {
	Stage    string        `json:"stage"`
	Removed  int           `json:"removed"`
	Duration time.Duration `json:"duration"`
}

// Result is the outcome of a run. The removal set inside it is the
// keep-predicate source for rendering.
type Result struct {
	RunID         string       `json:"run_id"`
	TotalRecords  int          `json:"total_records"`
	RemovedTotal  int          `json:"removed_total"`
	ClosurePasses int          `json:"closure_passes"`
	Stages        []StageStats `json:"stages"`
	Removals      []Removal    `json:"removals"`
	Diagnostics   []Diagnostic `json:"diagnostics,omitempty"`

	Set *RemovalSet `json:"-"`
}

// Execute runs the primary filters, the orphan closure, the anchor
// compatibility stage, and a final closure, in that order. The removal
// set only grows, so the stages compose monotonically. A solver
// infrastructure failure or a non-converging closure aborts the run.
func (r *Runner) Execute(ctx context.Context, idx *repodata.Index) (*Result, error) {
	set := NewRemovalSet()
	res := &Result{
		RunID:        uuid.New().String(),
		TotalRecords: idx.Len(),
		Set:          set,
	}
	r.Logger.Info("starting run", "run_id", res.RunID, "records", idx.Len())

	stage := func(name string, fn func() (int, error)) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		alive := idx.Len() - set.Len()
		observability.Pipeline().OnStageStart(ctx, name, alive)
		start := time.Now()
		removed, err := fn()
		elapsed := time.Since(start)
		observability.Pipeline().OnStageComplete(ctx, name, removed, elapsed, err)
		if err != nil {
			r.Logger.Error("stage failed", "stage", name, "error", err)
			return err
		}
		res.Stages = append(res.Stages, StageStats{Stage: name, Removed: removed, Duration: elapsed})
		r.Logger.Info("stage complete", "stage", name, "removed", removed, "duration", elapsed)
		return nil
	}

	closure := func() (int, error) {
		cr, err := Close(ctx, idx, set, r.Specs, r.Policy.MaxClosurePasses, r.Policy.Workers)
		res.ClosurePasses += cr.passes
		res.Diagnostics = append(res.Diagnostics, cr.diags...)
		for pass := 1; pass <= cr.passes; pass++ {
			observability.Pipeline().OnClosurePass(ctx, pass, cr.removed)
		}
		return cr.removed, err
	}

	steps := []struct {
		name string
		fn   func() (int, error)
	}{
		{"allow-list", func() (int, error) { return AllowList(idx, r.Policy, set), nil }},
		{"supersession", func() (int, error) { return Supersession(idx, set), nil }},
		{"prerelease", func() (int, error) { return Prerelease(idx, r.Policy, set), nil }},
		{"banned-features", func() (int, error) { return BannedFeatures(idx, r.Policy, set), nil }},
		{"virtual-packages", func() (int, error) { return VirtualPackages(idx, r.Policy, set), nil }},
		{"closure", closure},
		{"compatibility", func() (int, error) { return Compatibility(ctx, idx, r.Policy, set, r.Solver, r.Specs) }},
		{"final-closure", closure},
	}
	for _, s := range steps {
		if err := stage(s.name, s.fn); err != nil {
			return nil, err
		}
	}

	res.RemovedTotal = set.Len()
	res.Removals = set.Removals()
	r.Logger.Info("run complete",
		"run_id", res.RunID,
		"removed", res.RemovedTotal,
		"kept", res.TotalRecords-res.RemovedTotal,
		"closure_passes", res.ClosurePasses)
	return res, nil
}
