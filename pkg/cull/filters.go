package cull

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/repocull/repocull/pkg/matchspec"
	"github.com/repocull/repocull/pkg/policy"
	"github.com/repocull/repocull/pkg/repodata"
)

// predicate inspects a single record and reports whether it should be
// removed, along with the detail string for explain output.
type predicate func(rec *repodata.PackageRecord) (detail string, remove bool)

// forEachRecord runs a predicate over all records on a fixed-size
// worker pool and inserts the resulting removals. Records already in
// the set are skipped. Returns the number of newly removed records.
func forEachRecord(idx *repodata.Index, set *RemovalSet, workers int, reason Reason, pred predicate) int {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	records := idx.Records()

	jobs := make(chan *repodata.PackageRecord)
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		added int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				detail, remove := pred(rec)
				if !remove {
					continue
				}
				mu.Lock()
				if set.Add(rec, reason, detail) {
					added++
				}
				mu.Unlock()
			}
		}()
	}
	for _, rec := range records {
		if set.Contains(rec.Key()) {
			continue
		}
		jobs <- rec
	}
	close(jobs)
	wg.Wait()
	return added
}

// AllowList removes every record of an allow-listed name that matches
// none of the name's specs. Names absent from the allow list are
// untouched.
func AllowList(idx *repodata.Index, pol *policy.Policy, set *RemovalSet) int {
	if len(pol.Allow) == 0 {
		return 0
	}
	return forEachRecord(idx, set, pol.Workers, ReasonPolicyMismatch, func(rec *repodata.PackageRecord) (string, bool) {
		specs, ok := pol.Allow[rec.Name]
		if !ok {
			return "", false
		}
		for _, spec := range specs {
			if spec.Matches(rec) {
				return "", false
			}
		}
		return fmt.Sprintf("%s %s %s matches no allowed spec for %q", rec.Name, rec.VersionStr, rec.Build, rec.Name), true
	})
}

// Prerelease removes records whose version carries a banned
// pre-release token.
func Prerelease(idx *repodata.Index, pol *policy.Policy, set *RemovalSet) int {
	if len(pol.BannedPrerelease) == 0 {
		return 0
	}
	return forEachRecord(idx, set, pol.Workers, ReasonPrerelease, func(rec *repodata.PackageRecord) (string, bool) {
		for _, tok := range rec.Version.PrereleaseTokens() {
			if pol.BannedPrerelease[tok] {
				return fmt.Sprintf("pre-release version %s (token %q)", rec.VersionStr, tok), true
			}
		}
		return "", false
	})
}

// BannedFeatures removes records that declare or track a banned
// feature.
func BannedFeatures(idx *repodata.Index, pol *policy.Policy, set *RemovalSet) int {
	if len(pol.BannedFeatures) == 0 {
		return 0
	}
	return forEachRecord(idx, set, pol.Workers, ReasonBannedFeature, func(rec *repodata.PackageRecord) (string, bool) {
		for _, feat := range strings.Fields(rec.Features) {
			if pol.BannedFeatures[feat] {
				return fmt.Sprintf("declares feature %q", feat), true
			}
		}
		for _, feat := range rec.TrackFeatures {
			if pol.BannedFeatures[feat] {
				return fmt.Sprintf("tracks feature %q", feat), true
			}
		}
		return "", false
	})
}

// virtualBans maps the OS component of a subdir to the virtual
// packages that can never be satisfied on that platform.
var virtualBans = map[string][]string{
	"linux":   {"__osx", "__win"},
	"osx":     {"__linux", "__win", "__glibc"},
	"freebsd": {"__linux", "__win", "__glibc"},
	"win":     {"__linux", "__unix", "__glibc", "__osx"},
}

// VirtualPackages removes records depending on a virtual package that
// cannot exist on the record's platform. Records in noarch and in
// unrecognized subdirs are untouched.
func VirtualPackages(idx *repodata.Index, pol *policy.Policy, set *RemovalSet) int {
	return forEachRecord(idx, set, pol.Workers, ReasonVirtualPackage, func(rec *repodata.PackageRecord) (string, bool) {
		osPart, _, _ := strings.Cut(rec.Subdir, "-")
		banned := virtualBans[osPart]
		if len(banned) == 0 {
			return "", false
		}
		for _, dep := range rec.Depends {
			name, _, _ := strings.Cut(strings.TrimSpace(dep), " ")
			for _, ban := range banned {
				if name == ban {
					return fmt.Sprintf("depends on %s, unavailable on %s", name, rec.Subdir), true
				}
			}
		}
		return "", false
	})
}

// buildKey strips a trailing build-number suffix from a build string,
// so that rebuild variants like h2e1a3bb8_0 and h2e1a3bb8_1 group
// together while genuinely different builds stay apart.
func buildKey(build string, buildNumber uint64) string {
	suffix := strconv.FormatUint(buildNumber, 10)
	if strings.HasSuffix(build, suffix) {
		return build[:len(build)-len(suffix)]
	}
	return build
}

type supersedeGroup struct {
	name    string
	version string
	build   string
}

// Supersession groups surviving records by name, version, and build
// string minus its trailing build number, then removes everything in
// each group except the record(s) with the maximum build number.
// Grouping uses the canonical version form, so textually different but
// equal versions like 1.0 and 1.00 land in one group.
func Supersession(idx *repodata.Index, set *RemovalSet) int {
	groups := make(map[supersedeGroup][]*repodata.PackageRecord)
	for _, rec := range idx.Records() {
		if set.Contains(rec.Key()) {
			continue
		}
		g := supersedeGroup{
			name:    rec.Name,
			version: rec.Version.Canonical(),
			build:   buildKey(rec.Build, rec.BuildNumber),
		}
		groups[g] = append(groups[g], rec)
	}

	added := 0
	for _, recs := range groups {
		if len(recs) < 2 {
			continue
		}
		max := recs[0].BuildNumber
		for _, rec := range recs[1:] {
			if rec.BuildNumber > max {
				max = rec.BuildNumber
			}
		}
		for _, rec := range recs {
			if rec.BuildNumber == max {
				continue
			}
			detail := fmt.Sprintf("superseded by build number %d of %s %s", max, rec.Name, rec.VersionStr)
			if set.Add(rec, ReasonSuperseded, detail) {
				added++
			}
		}
	}
	return added
}

// anchorConstraints collects the raw dependency and constraint strings
// of a record that name one of the anchors. Strings that fail to parse
// are skipped here; the closure stage surfaces them.
func anchorConstraints(rec *repodata.PackageRecord, specs *matchspec.Cache, anchors map[string]bool) []string {
	var out []string
	for _, raw := range rec.Depends {
		if spec, err := specs.Parse(raw); err == nil && anchors[spec.Name] {
			out = append(out, raw)
		}
	}
	for _, raw := range rec.Constrains {
		if spec, err := specs.Parse(raw); err == nil && anchors[spec.Name] {
			out = append(out, raw)
		}
	}
	return out
}
