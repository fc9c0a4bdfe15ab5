package cull

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/repocull/repocull/pkg/matchspec"
	"github.com/repocull/repocull/pkg/policy"
	"github.com/repocull/repocull/pkg/repodata"
	"github.com/repocull/repocull/pkg/solve"
)

// OracleError reports an infrastructure failure while consulting the
// compatibility oracle. It is fatal: an unreachable oracle must never
// be conflated with an unsatisfiable query.
type OracleError struct {
	Group string
	Err   error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("compatibility oracle failed for %s: %v", e.Group, e.Err)
}

func (e *OracleError) Unwrap() error { return e.Err }

// compatGroup is one memoization unit: surviving records of one name
// that the oracle cannot tell apart. Records group when they share the
// same anchor-relevant constraint strings; when a surviving anchor
// record names the candidate's package, version and build join the
// signature so the anchor's own constraint is checked per variant.
type compatGroup struct {
	name    string
	version string
	build   string
	sig     []string
	records []*repodata.PackageRecord
}

// Compatibility removes every surviving non-anchor record that cannot
// be installed together with at least one candidate of every anchor.
// A record is queried when it constrains an anchor or when a surviving
// anchor record names its package; everything else is trivially
// compatible, since the query pool holds only the anchors and the
// record itself. Queries run concurrently, bounded by workers.
func Compatibility(ctx context.Context, idx *repodata.Index, pol *policy.Policy, set *RemovalSet, solver solve.Solver, specs *matchspec.Cache) (int, error) {
	anchors := make(map[string]bool)
	for _, name := range pol.AnchorNames() {
		if idx.HasName(name) {
			anchors[name] = true
		}
	}
	if len(anchors) == 0 {
		return 0, nil
	}

	// Anchor candidates surviving at stage start form the shared half
	// of every query pool. Names their depends/constrains mention must
	// be queried even when the candidate itself never names an anchor.
	var anchorPool []*repodata.PackageRecord
	anchorNames := make([]string, 0, len(anchors))
	mentioned := make(map[string]bool)
	for name := range anchors {
		anchorNames = append(anchorNames, name)
		for _, rec := range idx.Candidates(name) {
			if !set.Keep(rec.Key()) {
				continue
			}
			anchorPool = append(anchorPool, rec)
			for _, group := range [][]string{rec.Depends, rec.Constrains} {
				for _, raw := range group {
					if spec, err := specs.Parse(raw); err == nil {
						mentioned[spec.Name] = true
					}
				}
			}
		}
	}
	sort.Strings(anchorNames)

	groups := make(map[string]*compatGroup)
	for _, rec := range idx.Records() {
		if anchors[rec.Name] || set.Contains(rec.Key()) {
			continue
		}
		sig := anchorConstraints(rec, specs, anchors)
		if len(sig) == 0 && !mentioned[rec.Name] {
			continue
		}
		sort.Strings(sig)
		key := rec.Name + "\x00" + strings.Join(sig, "\x00")
		if mentioned[rec.Name] {
			// An anchor constrains this name, so the verdict depends on
			// the candidate's own version and build.
			key += "\x01" + rec.VersionStr + "\x00" + rec.Build + "\x00" + strconv.FormatUint(rec.BuildNumber, 10)
		}
		g, ok := groups[key]
		if !ok {
			g = &compatGroup{name: rec.Name, sig: sig}
			if mentioned[rec.Name] {
				g.version, g.build = rec.VersionStr, rec.Build
			}
			groups[key] = g
		}
		g.records = append(g.records, rec)
	}
	if len(groups) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	requests := make([]solve.Request, 0, len(anchorNames)+1)
	for _, name := range anchorNames {
		requests = append(requests, solve.Request{Name: name})
	}

	workers := pol.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		added   int
		firstEr error
	)
	sem := make(chan struct{}, workers)

	for _, key := range keys {
		g := groups[key]
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			if firstEr != nil {
				return added, firstEr
			}
			return added, ctx.Err()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			// One representative per group: members are
			// indistinguishable to the oracle, so one verdict covers all.
			rep := g.records[0]
			pool := make([]*repodata.PackageRecord, 0, len(anchorPool)+1)
			pool = append(pool, anchorPool...)
			pool = append(pool, rep)
			reqs := append(requests[:len(requests):len(requests)], solve.Request{Name: g.name})

			_, err := solver.Solve(ctx, reqs, pool)
			switch {
			case err == nil:
				return
			case errors.Is(err, solve.ErrUnsatisfiable):
				subject := strings.Join(g.sig, ", ")
				if subject == "" {
					subject = fmt.Sprintf("%s %s %s", g.name, g.version, g.build)
				}
				detail := fmt.Sprintf("no install with anchors %s satisfies %s",
					strings.Join(anchorNames, ", "), subject)
				mu.Lock()
				for _, rec := range g.records {
					if set.Add(rec, ReasonIncompatible, detail) {
						added++
					}
				}
				mu.Unlock()
			default:
				mu.Lock()
				if firstEr == nil {
					firstEr = &OracleError{Group: g.name, Err: err}
					cancel()
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return added, firstEr
}
