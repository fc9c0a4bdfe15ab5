package cache

import (
	"context"
	"testing"
	"time"
)

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	// Get always returns miss
	data, hit, err := c.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if hit {
		t.Error("NullCache.Get should always return miss")
	}
	if data != nil {
		t.Error("NullCache.Get should return nil data")
	}

	// Set does nothing (no error)
	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}

	// Still a miss after Set
	_, hit, _ = c.Get(ctx, "key")
	if hit {
		t.Error("NullCache should not store data")
	}

	// Delete does nothing (no error)
	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
}

func TestHash(t *testing.T) {
	// Test determinism
	h1 := Hash([]byte("hello"))
	h2 := Hash([]byte("hello"))
	if h1 != h2 {
		t.Error("Hash should be deterministic")
	}

	// Test different inputs produce different hashes
	h3 := Hash([]byte("world"))
	if h1 == h3 {
		t.Error("Different inputs should produce different hashes")
	}

	// Test hash length (SHA-256 produces 64 hex chars)
	if len(h1) != 64 {
		t.Errorf("Hash length should be 64, got %d", len(h1))
	}
}

func TestFileCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache: %v", err)
	}
	defer c.Close()

	// Miss before Set
	_, hit, err := c.Get(ctx, "repodata:abc")
	if err != nil || hit {
		t.Fatalf("expected clean miss, hit=%v err=%v", hit, err)
	}

	// Round trip
	payload := []byte(`{"repodata_version":2}`)
	if err := c.Set(ctx, "repodata:abc", payload, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	data, hit, err := c.Get(ctx, "repodata:abc")
	if err != nil || !hit {
		t.Fatalf("expected hit, hit=%v err=%v", hit, err)
	}
	if string(data) != string(payload) {
		t.Errorf("payload mismatch: %s", data)
	}

	// Expired entries read as misses
	if err := c.Set(ctx, "stale", payload, time.Nanosecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, hit, _ := c.Get(ctx, "stale"); hit {
		t.Error("expired entry should miss")
	}

	// Delete
	if err := c.Delete(ctx, "repodata:abc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "repodata:abc"); hit {
		t.Error("deleted entry should miss")
	}

	// Deleting a missing key is fine
	if err := c.Delete(ctx, "never-stored"); err != nil {
		t.Errorf("Delete of missing key: %v", err)
	}
}

func TestDefaultKeyer(t *testing.T) {
	k := NewDefaultKeyer()

	// HTTPKey
	httpKey := k.HTTPKey("conda-forge", "noarch/repodata.json")
	if httpKey != "http:conda-forge:noarch/repodata.json" {
		t.Errorf("HTTPKey unexpected: %s", httpKey)
	}

	// RepodataKey should distinguish both channel and subdir
	rk1 := k.RepodataKey("https://conda.anaconda.org/conda-forge/", "linux-64")
	rk2 := k.RepodataKey("https://conda.anaconda.org/conda-forge/", "noarch")
	rk3 := k.RepodataKey("https://example.com/channel/", "linux-64")
	if rk1 == rk2 || rk1 == rk3 {
		t.Error("RepodataKey should vary with channel and subdir")
	}
	if rk1 != k.RepodataKey("https://conda.anaconda.org/conda-forge/", "linux-64") {
		t.Error("RepodataKey should be deterministic")
	}

	// ReportKey
	if k.ReportKey("abc-123") != "report:abc-123" {
		t.Errorf("ReportKey unexpected: %s", k.ReportKey("abc-123"))
	}
}

func TestScopedKeyer(t *testing.T) {
	inner := NewDefaultKeyer()
	scoped := NewScopedKeyer(inner, "mirror:internal:")

	// All keys should be prefixed
	httpKey := scoped.HTTPKey("conda-forge", "noarch/repodata.json")
	if httpKey != "mirror:internal:http:conda-forge:noarch/repodata.json" {
		t.Errorf("ScopedKeyer HTTPKey unexpected: %s", httpKey)
	}

	rk := scoped.RepodataKey("https://example.com/channel/", "linux-64")
	if len(rk) < 20 || rk[:16] != "mirror:internal:" {
		t.Errorf("ScopedKeyer RepodataKey should be prefixed: %s", rk)
	}
}

func TestScopedKeyerNilInner(t *testing.T) {
	// Should use DefaultKeyer when inner is nil
	scoped := NewScopedKeyer(nil, "prefix:")
	key := scoped.HTTPKey("test", "key")
	if key != "prefix:http:test:key" {
		t.Errorf("Unexpected key with nil inner: %s", key)
	}
}
