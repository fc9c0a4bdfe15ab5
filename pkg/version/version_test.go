package version

import "testing"

func TestParseErrors(t *testing.T) {
	tests := []string{
		"",
		"   ",
		"!1.0",
		"x!1.0",
		"1.0+",
		"2!",
		"1.0~beta",
	}
	for _, s := range tests {
		if _, err := Parse(s); err == nil {
			t.Errorf("Parse(%q) should fail", s)
		}
	}
}

func TestCompare(t *testing.T) {
	// Each pair asserts left < right.
	ordered := [][2]string{
		{"1.0", "1.1"},
		{"1.0", "1.0.1"},
		{"1.9", "1.10"},
		{"0.4.1", "0.5"},
		{"1.0a", "1.0"},
		{"1.0a1", "1.0b1"},
		{"1.0rc1", "1.0"},
		{"1.0.dev1", "1.0a1"},
		{"1.0", "1.0.post1"},
		{"1.0", "2!0.1"},
		{"1.0", "1.0+cuda"},
		{"1.0+abc", "1.0+abd"},
		{"2.7.18", "3.9.18"},
		{"1.0alpha", "1.0beta"},
		{"1.1.0", "1.1.0post1"},
	}
	for _, pair := range ordered {
		a, b := MustParse(pair[0]), MustParse(pair[1])
		if a.Compare(b) != -1 {
			t.Errorf("Compare(%q, %q) = %d, want -1", pair[0], pair[1], a.Compare(b))
		}
		if b.Compare(a) != 1 {
			t.Errorf("Compare(%q, %q) = %d, want 1", pair[1], pair[0], b.Compare(a))
		}
	}

	equal := [][2]string{
		{"1.0", "1.0"},
		{"1.0", "1.0.0"},
		{"1.0", "1.00"},
		{"0!1.0", "1.0"},
		{"1.0_1", "1.0.1"},
	}
	for _, pair := range equal {
		a, b := MustParse(pair[0]), MustParse(pair[1])
		if a.Compare(b) != 0 {
			t.Errorf("Compare(%q, %q) = %d, want 0", pair[0], pair[1], a.Compare(b))
		}
	}
}

func TestCompareHugeNumerals(t *testing.T) {
	a := MustParse("20240101999999999999999999")
	b := MustParse("20240102000000000000000000")
	if a.Compare(b) != -1 {
		t.Error("large numeric segments should compare without overflow")
	}
}

func TestIsPrerelease(t *testing.T) {
	tests := []struct {
		version string
		want    bool
	}{
		{"1.0", false},
		{"1.0a1", true},
		{"1.0.b2", true},
		{"1.0rc3", true},
		{"1.0.dev0", true},
		{"2.0alpha", true},
		{"2.0beta1", true},
		{"1.0+dev", true},
		{"1.0.post1", false},
		{"1.0h2", false},
		{"2024.4", false},
	}
	for _, tt := range tests {
		if got := MustParse(tt.version).IsPrerelease(); got != tt.want {
			t.Errorf("IsPrerelease(%q) = %v, want %v", tt.version, got, tt.want)
		}
	}
}

func TestStartsWith(t *testing.T) {
	tests := []struct {
		version string
		prefix  string
		want    bool
	}{
		{"3.9.18", "3.9", true},
		{"3.9.18", "3.9.18", true},
		{"3.9.18", "3.9.1", false},
		{"3.10.0", "3.1", false},
		{"2.7.18", "2.7", true},
		{"1.1.1k", "1.1.1", true},
		{"3.9", "3.9.0", false},
	}
	for _, tt := range tests {
		got := MustParse(tt.version).StartsWith(MustParse(tt.prefix))
		if got != tt.want {
			t.Errorf("StartsWith(%q, %q) = %v, want %v", tt.version, tt.prefix, got, tt.want)
		}
	}
}

func TestCanonical(t *testing.T) {
	same := [][2]string{
		{"1.0", "1.00"},
		{"1.0", "1.0.0"},
		{"0!1.0", "1.0"},
		{"1.09", "1.9"},
		{"1.0_1", "1.0.1"},
		{"1.0a0", "1.0a"},
		{"1.0+cuda.0", "1.0+cuda"},
	}
	for _, pair := range same {
		a, b := MustParse(pair[0]).Canonical(), MustParse(pair[1]).Canonical()
		if a != b {
			t.Errorf("Canonical(%q) = %q, Canonical(%q) = %q, want equal", pair[0], a, pair[1], b)
		}
	}

	distinct := [][2]string{
		{"1.0", "1.0.1"},
		{"1.9", "1.10"},
		{"1.0", "2!1.0"},
		{"1.0", "1.0+cuda112"},
		{"1.0a", "1.0"},
	}
	for _, pair := range distinct {
		a, b := MustParse(pair[0]), MustParse(pair[1])
		if a.Canonical() == b.Canonical() {
			t.Errorf("Canonical(%q) and Canonical(%q) both %q, want distinct", pair[0], pair[1], a.Canonical())
		}
		if a.Compare(b) == 0 {
			t.Errorf("test pair %v should not compare equal", pair)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	raw := "2!1.0.Post1+Cuda112"
	if got := MustParse(raw).String(); got != raw {
		t.Errorf("String() = %q, want original %q", got, raw)
	}
}
