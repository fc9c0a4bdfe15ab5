package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/repocull/repocull/pkg/policy"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.ChannelAlias != policy.DefaultChannelAlias {
		t.Errorf("ChannelAlias = %q, want %q", cfg.ChannelAlias, policy.DefaultChannelAlias)
	}
	if len(cfg.Archs) != 1 || cfg.Archs[0] != "linux-64" {
		t.Errorf("Archs = %v, want [linux-64]", cfg.Archs)
	}
	if len(cfg.Anchors) != 1 || cfg.Anchors[0] != "python" {
		t.Errorf("Anchors = %v, want [python]", cfg.Anchors)
	}
	if cfg.MaxPasses != policy.DefaultMaxClosurePasses {
		t.Errorf("MaxPasses = %d, want %d", cfg.MaxPasses, policy.DefaultMaxClosurePasses)
	}
	if cfg.Cache.Backend != "file" {
		t.Errorf("Cache.Backend = %q, want file", cfg.Cache.Backend)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "repocull.toml")
	content := `
channel_alias = "https://conda.example.com/main/"
archs = ["osx-arm64", "osx-64"]
anchors = ["python", "r-base"]
ban_features = []
max_passes = 10

[cache]
backend = "redis"
redis_url = "redis://localhost:6379/0"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}

	if cfg.ChannelAlias != "https://conda.example.com/main/" {
		t.Errorf("ChannelAlias = %q", cfg.ChannelAlias)
	}
	if len(cfg.Archs) != 2 || cfg.Archs[0] != "osx-arm64" {
		t.Errorf("Archs = %v, want [osx-arm64 osx-64]", cfg.Archs)
	}
	if len(cfg.Anchors) != 2 {
		t.Errorf("Anchors = %v, want two entries", cfg.Anchors)
	}
	if cfg.MaxPasses != 10 {
		t.Errorf("MaxPasses = %d, want 10", cfg.MaxPasses)
	}
	if cfg.Cache.Backend != "redis" {
		t.Errorf("Cache.Backend = %q, want redis", cfg.Cache.Backend)
	}

	// Keys absent from the file keep their defaults.
	if cfg.Output != "out" {
		t.Errorf("Output = %q, want default out", cfg.Output)
	}
}

func TestLoadConfigExplicitMissing(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil {
		t.Fatal("loadConfig() with explicit missing path should fail")
	}
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repocull.toml")
	if err := os.WriteFile(path, []byte("channel_alias = ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadConfig(path); err == nil {
		t.Fatal("loadConfig() should reject invalid TOML")
	}
}

func TestBuildPolicy(t *testing.T) {
	cfg := defaultConfig()
	cfg.Anchors = []string{"python", "numpy"}
	cfg.BanFeatures = []string{"pypy", "debug"}
	cfg.KeepRC = true

	pol, err := buildPolicy(cfg)
	if err != nil {
		t.Fatalf("buildPolicy() error: %v", err)
	}

	if len(pol.Anchors) != 2 {
		t.Errorf("Anchors = %v, want two entries", pol.Anchors)
	}
	if !pol.BannedFeatures["pypy"] || !pol.BannedFeatures["debug"] {
		t.Errorf("BannedFeatures = %v, want pypy and debug banned", pol.BannedFeatures)
	}
	if pol.BannedPrerelease["rc"] {
		t.Error("rc should be kept when KeepRC is set")
	}
	if !pol.BannedPrerelease["alpha"] {
		t.Error("alpha should stay banned")
	}
}
