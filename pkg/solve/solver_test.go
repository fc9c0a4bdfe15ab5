package solve

import (
	"context"
	"errors"
	"testing"

	"github.com/repocull/repocull/pkg/matchspec"
	"github.com/repocull/repocull/pkg/repodata"
	"github.com/repocull/repocull/pkg/version"
)

func rec(name, ver, build string, depends ...string) *repodata.PackageRecord {
	return &repodata.PackageRecord{
		Name:        name,
		VersionStr:  ver,
		Version:     version.MustParse(ver),
		Build:       build,
		Subdir:      "linux-64",
		Filename:    name + "-" + ver + "-" + build + ".conda",
		Depends:     depends,
	}
}

func mustSpec(t *testing.T, s string) *matchspec.Spec {
	t.Helper()
	spec, err := matchspec.Parse(s)
	if err != nil {
		t.Fatal(err)
	}
	return spec
}

func TestSolveSimple(t *testing.T) {
	pool := []*repodata.PackageRecord{
		rec("python", "3.9.18", "h2_1"),
		rec("numpy", "1.26.0", "py39_0", "python >=3.9,<3.10"),
	}
	solver := NewBacktracking(nil)

	sel, err := solver.Solve(context.Background(), []Request{
		{Name: "numpy", Spec: mustSpec(t, "numpy")},
		{Name: "python", Spec: mustSpec(t, "python")},
	}, pool)
	if err != nil {
		t.Fatal(err)
	}
	if sel["numpy"] == nil || sel["python"] == nil {
		t.Fatalf("incomplete selection: %v", sel)
	}
}

func TestSolveBacktracks(t *testing.T) {
	// numpy py39 needs the older python; the solver must not get stuck
	// on python 3.10 even though it sorts later in the pool.
	pool := []*repodata.PackageRecord{
		rec("python", "3.10.2", "h0_0"),
		rec("python", "3.9.18", "h2_1"),
		rec("numpy", "1.21.0", "py39_0", "python >=3.9,<3.10"),
	}
	solver := NewBacktracking(nil)

	sel, err := solver.Solve(context.Background(), []Request{
		{Name: "python", Spec: nil},
		{Name: "numpy", Spec: nil},
	}, pool)
	if err != nil {
		t.Fatal(err)
	}
	if got := sel["python"].VersionStr; got != "3.9.18" {
		t.Errorf("selected python %s, want 3.9.18", got)
	}
}

func TestSolveUnsatisfiable(t *testing.T) {
	pool := []*repodata.PackageRecord{
		rec("python", "3.9.18", "h2_1"),
		rec("numpy", "1.21.0", "py27_0", "python 2.7.*"),
	}
	solver := NewBacktracking(nil)

	_, err := solver.Solve(context.Background(), []Request{
		{Name: "numpy", Spec: nil},
		{Name: "python", Spec: nil},
	}, pool)
	if !errors.Is(err, ErrUnsatisfiable) {
		t.Fatalf("err = %v, want ErrUnsatisfiable", err)
	}
}

func TestSolveMissingCandidate(t *testing.T) {
	solver := NewBacktracking(nil)
	_, err := solver.Solve(context.Background(), []Request{
		{Name: "python", Spec: mustSpec(t, "python >=4")},
	}, []*repodata.PackageRecord{rec("python", "3.9.18", "h2_1")})
	if !errors.Is(err, ErrUnsatisfiable) {
		t.Fatalf("err = %v, want ErrUnsatisfiable", err)
	}
}

func TestSolveConstrains(t *testing.T) {
	// "constrains" restricts a package without requiring it.
	libA := rec("liba", "1.0", "h0_0")
	libA.Constrains = []string{"libb <2"}
	pool := []*repodata.PackageRecord{
		libA,
		rec("libb", "2.1", "h0_0"),
	}
	solver := NewBacktracking(nil)

	_, err := solver.Solve(context.Background(), []Request{
		{Name: "liba", Spec: nil},
		{Name: "libb", Spec: nil},
	}, pool)
	if !errors.Is(err, ErrUnsatisfiable) {
		t.Fatalf("err = %v, want ErrUnsatisfiable", err)
	}
}

func TestSolveIgnoresOutOfPoolDeps(t *testing.T) {
	// openssl is not in the pool, so numpy's dependency on it is not the
	// solver's problem; the pool defines the universe.
	pool := []*repodata.PackageRecord{
		rec("numpy", "1.26.0", "py39_0", "openssl >=3"),
	}
	solver := NewBacktracking(nil)

	if _, err := solver.Solve(context.Background(), []Request{{Name: "numpy"}}, pool); err != nil {
		t.Fatal(err)
	}
}

func TestSolveEmptyRequests(t *testing.T) {
	solver := NewBacktracking(nil)
	sel, err := solver.Solve(context.Background(), nil, nil)
	if err != nil || len(sel) != 0 {
		t.Fatalf("Solve(nil) = %v, %v; want empty selection", sel, err)
	}
}

func TestSolveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	solver := NewBacktracking(nil)
	_, err := solver.Solve(ctx, []Request{{Name: "python"}}, []*repodata.PackageRecord{
		rec("python", "3.9.18", "h2_1"),
	})
	if err == nil {
		t.Fatal("cancelled context should fail the solve")
	}
	if errors.Is(err, ErrUnsatisfiable) {
		t.Fatal("cancellation must not masquerade as unsatisfiability")
	}
}
