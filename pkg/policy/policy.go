// Package policy holds the administrator configuration the curation
// pipeline runs under: the per-package allow-list, banned features,
// pre-release exclusions, anchor packages, and runtime limits.
//
// A Policy is built once before the pipeline starts and read-only
// afterwards. It is passed explicitly through every stage rather than
// living in package-level state, so stages stay independently testable.
package policy

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/repocull/repocull/pkg/matchspec"
	"github.com/repocull/repocull/pkg/version"
)

// Defaults mirroring the standard curation setup.
const (
	DefaultChannelAlias     = "https://conda.anaconda.org/conda-forge/"
	DefaultMaxClosurePasses = 100
)

// Policy is the full user configuration for one curation run.
type Policy struct {
	// Allow maps package names to their allow-list. Records of a name
	// present here must match at least one spec to survive; names
	// absent from the map pass through untouched.
	Allow map[string][]*matchspec.Spec

	// BannedFeatures removes any record whose features or
	// track_features intersect it.
	BannedFeatures map[string]bool

	// BannedPrerelease holds the pre-release tokens to exclude. Empty
	// means the pre-release filter is disabled.
	BannedPrerelease map[string]bool

	// Anchors are the package names every surviving candidate must stay
	// jointly installable with.
	Anchors []string

	// ChannelAlias is the base URL substituted into rendered documents
	// that do not declare their own.
	ChannelAlias string

	// MaxClosurePasses bounds the closure fixpoint loop. Exceeding it
	// fails the run rather than emitting a partially closed result.
	MaxClosurePasses int

	// Workers sizes the filter-stage worker pools; <= 0 selects
	// GOMAXPROCS.
	Workers int
}

// New returns a policy with defaults and no filters configured.
func New() *Policy {
	return &Policy{
		Allow:            make(map[string][]*matchspec.Spec),
		BannedFeatures:   make(map[string]bool),
		BannedPrerelease: make(map[string]bool),
		ChannelAlias:     DefaultChannelAlias,
		MaxClosurePasses: DefaultMaxClosurePasses,
	}
}

// BanFeatures adds feature names to the banned set.
func (p *Policy) BanFeatures(names ...string) {
	for _, name := range names {
		if name != "" {
			p.BannedFeatures[name] = true
		}
	}
}

// BanPrerelease enables pre-release exclusion for every known token
// except the listed ones. BanPrerelease() bans them all;
// BanPrerelease("rc") keeps release candidates while still dropping
// dev, alpha, and beta builds.
func (p *Policy) BanPrerelease(keep ...string) {
	kept := make(map[string]bool, len(keep))
	for _, tok := range keep {
		kept[tok] = true
	}
	for _, tok := range version.KnownPrereleaseTokens() {
		if !kept[tok] {
			p.BannedPrerelease[tok] = true
		}
	}
}

// AnchorNames returns the anchors deduplicated and sorted, the order
// the compatibility stage processes them in.
func (p *Policy) AnchorNames() []string {
	seen := make(map[string]bool, len(p.Anchors))
	names := make([]string, 0, len(p.Anchors))
	for _, name := range p.Anchors {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// AllowNames returns the allow-listed package names in sorted order.
func (p *Policy) AllowNames() []string {
	names := make([]string, 0, len(p.Allow))
	for name := range p.Allow {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadAllow merges an allow-list document into the policy. The document
// maps package names to lists of nameless specifier strings:
//
//	python:
//	  - ">=3.9,<3.10"
//	  - ">=3.10,<3.11"
//	pyyaml:
//	  - "=5.4.1"
//
// A spec that fails to parse is fatal; a policy typo must never
// silently widen the allow-list.
func (p *Policy) LoadAllow(data []byte) error {
	var doc map[string][]string
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing allow-list document: %w", err)
	}
	for name, exprs := range doc {
		for _, expr := range exprs {
			spec, err := matchspec.ParseNameless(name, expr)
			if err != nil {
				return fmt.Errorf("allow-list entry for %s: %w", name, err)
			}
			p.Allow[name] = append(p.Allow[name], spec)
		}
	}
	return nil
}

// LoadAllowFile reads and merges an allow-list document from disk.
func (p *Policy) LoadAllowFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading allow-list %s: %w", path, err)
	}
	if err := p.LoadAllow(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
