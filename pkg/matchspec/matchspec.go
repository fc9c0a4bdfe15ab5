// Package matchspec parses and evaluates conda match specifiers.
//
// A spec names a package and optionally constrains its version and
// build, e.g. "python >=3.9,<3.10", "numpy 1.21.*", or
// "python_abi 3.9.* *_cp39". One matcher serves both policy allow-lists
// and dependency-satisfaction checks in the closure engine, so the two
// callers can never disagree about what a specifier means.
package matchspec

import (
	"fmt"
	"strings"

	"github.com/repocull/repocull/pkg/repodata"
	"github.com/repocull/repocull/pkg/version"
)

// ParseError reports an unparsable specifier string. Policy-file specs
// fail the run at startup; dependency-field specs inside package
// records are instead treated as unsatisfiable constraints during
// closure.
type ParseError struct {
	Spec string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid matchspec %q: %v", e.Spec, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Spec is a parsed match specifier. A spec with no version or build
// predicate matches every record of the matching name.
type Spec struct {
	Name string

	raw     string
	version versionExpr     // nil matches any version
	build   *buildPredicate // nil matches any build
}

// String returns the original specifier text.
func (s *Spec) String() string { return s.raw }

// Matches reports whether the record satisfies the spec. Pure; no side
// effects.
func (s *Spec) Matches(r *repodata.PackageRecord) bool {
	if r.Name != s.Name {
		return false
	}
	if s.version != nil && !s.version.matches(r.Version) {
		return false
	}
	if s.build != nil && !s.build.matches(r.Build, r.BuildNumber) {
		return false
	}
	return true
}

// Parse parses a full specifier of the form "name [version [build]]".
func Parse(s string) (*Spec, error) {
	// Lenient about whitespace after comma: "python >=3.6, <3.7" is the
	// same constraint as "python >=3.6,<3.7".
	norm := s
	for strings.Contains(norm, ", ") {
		norm = strings.ReplaceAll(norm, ", ", ",")
	}
	fields := strings.Fields(norm)
	if len(fields) == 0 {
		return nil, &ParseError{Spec: s, Err: fmt.Errorf("empty specifier")}
	}
	spec := &Spec{Name: fields[0], raw: strings.Join(fields, " ")}

	switch len(fields) {
	case 1:
	case 2:
		expr, err := parseVersionExpr(fields[1])
		if err != nil {
			return nil, &ParseError{Spec: s, Err: err}
		}
		spec.version = expr
	case 3:
		expr, err := parseVersionExpr(fields[1])
		if err != nil {
			return nil, &ParseError{Spec: s, Err: err}
		}
		spec.version = expr
		spec.build = parseBuildPredicate(fields[2])
	default:
		return nil, &ParseError{Spec: s, Err: fmt.Errorf("too many fields")}
	}
	return spec, nil
}

// ParseNameless parses a version/build expression belonging to a known
// package name, the form allow-list documents use.
func ParseNameless(name, expr string) (*Spec, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" || expr == "*" {
		return Parse(name)
	}
	return Parse(name + " " + expr)
}

// versionExpr is a disjunction ("|") of conjunctions (",") of
// primitive constraints.
type versionExpr [][]primitive

func (e versionExpr) matches(v version.Version) bool {
	for _, group := range e {
		ok := true
		for _, p := range group {
			if !p.matches(v) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

type operator int

const (
	opAny operator = iota
	opEq
	opNeq
	opGt
	opGe
	opLt
	opLe
	opPrefix
	opNotPrefix
)

type primitive struct {
	op  operator
	ver version.Version
}

func (p primitive) matches(v version.Version) bool {
	switch p.op {
	case opAny:
		return true
	case opEq:
		return v.Compare(p.ver) == 0
	case opNeq:
		return v.Compare(p.ver) != 0
	case opGt:
		return v.Compare(p.ver) > 0
	case opGe:
		return v.Compare(p.ver) >= 0
	case opLt:
		return v.Compare(p.ver) < 0
	case opLe:
		return v.Compare(p.ver) <= 0
	case opPrefix:
		return v.StartsWith(p.ver)
	case opNotPrefix:
		return !v.StartsWith(p.ver)
	}
	return false
}

func parseVersionExpr(s string) (versionExpr, error) {
	if s == "" || s == "*" {
		return nil, nil
	}
	var expr versionExpr
	for _, group := range strings.Split(s, "|") {
		var prims []primitive
		for _, tok := range strings.Split(group, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				return nil, fmt.Errorf("empty constraint in %q", s)
			}
			p, err := parsePrimitive(tok)
			if err != nil {
				return nil, err
			}
			prims = append(prims, p)
		}
		expr = append(expr, prims)
	}
	return expr, nil
}

func parsePrimitive(tok string) (primitive, error) {
	if tok == "*" {
		return primitive{op: opAny}, nil
	}

	op := opEq
	switch {
	case strings.HasPrefix(tok, ">="):
		op, tok = opGe, tok[2:]
	case strings.HasPrefix(tok, "<="):
		op, tok = opLe, tok[2:]
	case strings.HasPrefix(tok, "=="):
		op, tok = opEq, tok[2:]
	case strings.HasPrefix(tok, "!="):
		op, tok = opNeq, tok[2:]
	case strings.HasPrefix(tok, ">"):
		op, tok = opGt, tok[1:]
	case strings.HasPrefix(tok, "<"):
		op, tok = opLt, tok[1:]
	case strings.HasPrefix(tok, "="):
		// "=3.9" is fuzzy: equivalent to the prefix 3.9.*.
		op, tok = opPrefix, tok[1:]
	}
	tok = strings.TrimSpace(tok)

	// Trailing globs turn equality into prefix matching: "1.21.*",
	// "1.1.1*", "==3.9.*", "!=3.9.*".
	if cut, ok := strings.CutSuffix(tok, ".*"); ok {
		tok = cut
		switch op {
		case opNeq:
			op = opNotPrefix
		case opEq, opPrefix:
			op = opPrefix
		default:
			return primitive{}, fmt.Errorf("glob %q not allowed after ordering operator", tok+".*")
		}
	} else if cut, ok := strings.CutSuffix(tok, "*"); ok {
		tok = cut
		switch op {
		case opNeq:
			op = opNotPrefix
		case opEq, opPrefix:
			op = opPrefix
		default:
			return primitive{}, fmt.Errorf("glob %q not allowed after ordering operator", tok+"*")
		}
	}
	if tok == "" {
		return primitive{}, fmt.Errorf("missing version after operator")
	}

	v, err := version.Parse(tok)
	if err != nil {
		return primitive{}, err
	}
	return primitive{op: op, ver: v}, nil
}

// buildPredicate constrains the build string (exact or glob) or, when
// the token is all digits, the build number.
type buildPredicate struct {
	raw         string
	buildNumber uint64
	isNumber    bool
	globParts   []string // non-nil when the token contains '*'
}

func (b *buildPredicate) matches(build string, buildNumber uint64) bool {
	if b.isNumber {
		return buildNumber == b.buildNumber
	}
	if b.globParts != nil {
		return globMatch(b.globParts, build)
	}
	return build == b.raw
}

func parseBuildPredicate(tok string) *buildPredicate {
	p := &buildPredicate{raw: tok}
	if n, ok := parseUint(tok); ok {
		p.isNumber = true
		p.buildNumber = n
		return p
	}
	if strings.ContainsRune(tok, '*') {
		p.globParts = strings.Split(tok, "*")
	}
	return p
}

// globMatch matches s against the literal parts of a '*'-separated
// pattern: parts must appear in order, with the first and last anchored
// to the ends of s.
func globMatch(parts []string, s string) bool {
	for i, part := range parts {
		switch i {
		case 0:
			if !strings.HasPrefix(s, part) {
				return false
			}
			s = s[len(part):]
		case len(parts) - 1:
			return strings.HasSuffix(s, part)
		default:
			j := strings.Index(s, part)
			if j < 0 {
				return false
			}
			s = s[j+len(part):]
		}
	}
	return true
}

func parseUint(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	var n uint64
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		n = n*10 + uint64(s[i]-'0')
	}
	return n, true
}
