// Package version implements parsing and ordering of conda package
// versions.
//
// Conda versions are dot-separated segments with an optional epoch
// ("2!1.0") and an optional local part ("1.0+cuda112"). Each segment is
// an alternating run of numeric and alphabetic components: numeric
// components compare numerically, alphabetic components compare
// lexically, and an alphabetic component always orders below a numeric
// one, so "1.0a" < "1.0". The "dev" component orders below every other
// alphabetic component and "post" orders above numerals, matching the
// conda ecosystem ("1.0.dev1" < "1.0a1" < "1.0" < "1.0.post1").
package version

import (
	"fmt"
	"sort"
	"strings"
)

// prereleaseTokens are the alphabetic components that mark a version as
// a pre-release when they appear in any segment of the version or the
// local part.
var prereleaseTokens = map[string]bool{
	"dev":   true,
	"a":     true,
	"b":     true,
	"rc":    true,
	"alpha": true,
	"beta":  true,
}

// component is one alternating run inside a segment. Numeric components
// keep their digits normalized (leading zeros stripped) so comparison
// never overflows.
type component struct {
	num   string // normalized digits, valid when isNum
	str   string // lower-cased letters, valid when !isNum
	isNum bool
}

// segment is a dot/underscore/hyphen separated part of a version.
type segment []component

// Version is a parsed, comparable conda version. The zero value is not
// valid; use Parse.
type Version struct {
	raw     string
	epoch   string // normalized digits, "0" when absent
	release []segment
	local   []segment
}

// Parse parses a conda version string. It fails on empty input, a
// non-numeric epoch, or characters outside [A-Za-z0-9._+!-].
func Parse(s string) (Version, error) {
	raw := s
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Version{}, fmt.Errorf("empty version string")
	}

	v := Version{raw: raw, epoch: "0"}

	if i := strings.IndexByte(s, '!'); i >= 0 {
		epoch := s[:i]
		if epoch == "" || !allDigits(epoch) {
			return Version{}, fmt.Errorf("version %q: epoch must be numeric", raw)
		}
		v.epoch = normalizeDigits(epoch)
		s = s[i+1:]
	}

	local := ""
	if i := strings.IndexByte(s, '+'); i >= 0 {
		local = s[i+1:]
		s = s[:i]
		if local == "" {
			return Version{}, fmt.Errorf("version %q: empty local part", raw)
		}
	}
	if s == "" {
		return Version{}, fmt.Errorf("version %q: empty release part", raw)
	}

	var err error
	if v.release, err = parseSegments(s); err != nil {
		return Version{}, fmt.Errorf("version %q: %w", raw, err)
	}
	if local != "" {
		if v.local, err = parseSegments(local); err != nil {
			return Version{}, fmt.Errorf("version %q: %w", raw, err)
		}
	}
	return v, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the original version string.
func (v Version) String() string { return v.raw }

// Canonical returns a normalized rendering under which two versions are
// textually equal exactly when Compare orders them equal: leading
// zeros, trailing zero components, and trailing zero segments are
// dropped, separators collapse to ".", and the epoch appears only when
// nonzero, so "1.0", "1.00", and "1.0.0" all canonicalize to "1".
// Intended as a grouping key.
func (v Version) Canonical() string {
	var sb strings.Builder
	if v.epoch != "0" {
		sb.WriteString(v.epoch)
		sb.WriteByte('!')
	}
	canonicalSegments(&sb, v.release)
	if len(v.local) > 0 {
		sb.WriteByte('+')
		canonicalSegments(&sb, v.local)
	}
	return sb.String()
}

func canonicalSegments(sb *strings.Builder, segs []segment) {
	// Trailing zero segments compare equal to their absence.
	end := len(segs)
	for end > 0 && compareSegment(segs[end-1], zeroSegment) == 0 {
		end--
	}
	if end == 0 {
		sb.WriteByte('0')
		return
	}
	for i, seg := range segs[:end] {
		if i > 0 {
			sb.WriteByte('.')
		}
		last := len(seg)
		for last > 1 && compareComponent(seg[last-1], zeroComponent) == 0 {
			last--
		}
		for _, c := range seg[:last] {
			if c.isNum {
				sb.WriteString(c.num)
			} else {
				sb.WriteString(c.str)
			}
		}
	}
}

// IsPrerelease reports whether any alphabetic component of the version
// or its local part is a recognized pre-release token (dev, a, b, rc,
// alpha, beta).
func (v Version) IsPrerelease() bool {
	return len(v.PrereleaseTokens()) > 0
}

// PrereleaseTokens returns the distinct recognized pre-release tokens
// appearing in the version or its local part, in order of appearance.
// Policies can ban a subset, e.g. keep rc builds but drop dev builds.
func (v Version) PrereleaseTokens() []string {
	var tokens []string
	seen := map[string]bool{}
	for _, segs := range [][]segment{v.release, v.local} {
		for _, seg := range segs {
			for _, c := range seg {
				if !c.isNum && prereleaseTokens[c.str] && !seen[c.str] {
					seen[c.str] = true
					tokens = append(tokens, c.str)
				}
			}
		}
	}
	return tokens
}

// KnownPrereleaseTokens returns every token PrereleaseTokens can
// report, in sorted order.
func KnownPrereleaseTokens() []string {
	tokens := make([]string, 0, len(prereleaseTokens))
	for tok := range prereleaseTokens {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)
	return tokens
}

// Compare returns -1, 0, or +1 ordering v against o. The order is total:
// epoch first, then release segments componentwise (missing components
// count as zero), then the local part (a missing local part orders
// below a present one).
func (v Version) Compare(o Version) int {
	if c := compareNum(v.epoch, o.epoch); c != 0 {
		return c
	}
	if c := compareSegments(v.release, o.release); c != 0 {
		return c
	}
	switch {
	case len(v.local) == 0 && len(o.local) == 0:
		return 0
	case len(v.local) == 0:
		return -1
	case len(o.local) == 0:
		return 1
	}
	return compareSegments(v.local, o.local)
}

// StartsWith reports whether v falls inside the prefix expressed by o,
// e.g. 3.9.18 starts with 3.9 but not with 3.9.1. Used for fuzzy
// ("=3.9", "3.9.*") constraint matching.
func (v Version) StartsWith(o Version) bool {
	if compareNum(v.epoch, o.epoch) != 0 {
		return false
	}
	if len(o.release) > len(v.release) {
		return false
	}
	for i, seg := range o.release {
		if compareSegment(v.release[i], seg) != 0 {
			return false
		}
	}
	return true
}

func parseSegments(s string) ([]segment, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == '-' || r == '_'
	})
	if len(fields) == 0 {
		return nil, fmt.Errorf("no version segments")
	}
	segs := make([]segment, 0, len(fields))
	for _, f := range fields {
		seg, err := parseSegment(f)
		if err != nil {
			return nil, err
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

func parseSegment(s string) (segment, error) {
	var seg segment
	for len(s) > 0 {
		n := 0
		if isDigit(s[0]) {
			for n < len(s) && isDigit(s[n]) {
				n++
			}
			seg = append(seg, component{num: normalizeDigits(s[:n]), isNum: true})
		} else if isAlpha(s[0]) {
			for n < len(s) && isAlpha(s[n]) {
				n++
			}
			seg = append(seg, component{str: s[:n]})
		} else {
			return nil, fmt.Errorf("invalid character %q in segment %q", s[0], s)
		}
		s = s[n:]
	}
	return seg, nil
}

func compareSegments(a, b []segment) int {
	n := max(len(a), len(b))
	for i := 0; i < n; i++ {
		as, bs := zeroSegment, zeroSegment
		if i < len(a) {
			as = a[i]
		}
		if i < len(b) {
			bs = b[i]
		}
		if c := compareSegment(as, bs); c != 0 {
			return c
		}
	}
	return 0
}

var zeroComponent = component{num: "0", isNum: true}
var zeroSegment = segment{zeroComponent}

func compareSegment(a, b segment) int {
	n := max(len(a), len(b))
	for i := 0; i < n; i++ {
		ac, bc := zeroComponent, zeroComponent
		if i < len(a) {
			ac = a[i]
		}
		if i < len(b) {
			bc = b[i]
		}
		if c := compareComponent(ac, bc); c != 0 {
			return c
		}
	}
	return 0
}

func compareComponent(a, b component) int {
	switch {
	case a.isNum && b.isNum:
		return compareNum(a.num, b.num)
	case a.isNum:
		// "post" sorts above numerals; every other string below.
		if b.str == "post" {
			return -1
		}
		return 1
	case b.isNum:
		if a.str == "post" {
			return 1
		}
		return -1
	}
	if a.str == b.str {
		return 0
	}
	// dev is the lowest string, post the highest.
	switch {
	case a.str == "dev":
		return -1
	case b.str == "dev":
		return 1
	case a.str == "post":
		return 1
	case b.str == "post":
		return -1
	case a.str < b.str:
		return -1
	}
	return 1
}

// compareNum compares two normalized digit strings numerically without
// integer conversion: longer means larger, equal length falls back to
// byte order.
func compareNum(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

func normalizeDigits(s string) string {
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return len(s) > 0
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isAlpha(c byte) bool { return c >= 'a' && c <= 'z' }
