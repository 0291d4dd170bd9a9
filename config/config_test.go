package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "target.cfg")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadAndGet(t *testing.T) {
	path := writeConfig(t, "# comment\nregalloc = greedy\n\ncpu_features=avx2\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer cfg.Close()

	v, ok := cfg.Get("regalloc")
	if !ok || v != "greedy" {
		t.Fatalf("Get(regalloc) = (%q, %v), want (greedy, true)", v, ok)
	}
	v, ok = cfg.Get("cpu_features")
	if !ok || v != "avx2" {
		t.Fatalf("Get(cpu_features) = (%q, %v), want (avx2, true)", v, ok)
	}
	if _, ok := cfg.Get("nosuch"); ok {
		t.Fatal("Get(nosuch) unexpectedly found")
	}
}

func TestGetOrFallback(t *testing.T) {
	path := writeConfig(t, "known=value\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer cfg.Close()

	if got := cfg.GetOr("known", "default"); got != "value" {
		t.Fatalf("GetOr(known) = %q, want %q", got, "value")
	}
	if got := cfg.GetOr("missing", "default"); got != "default" {
		t.Fatalf("GetOr(missing) = %q, want %q", got, "default")
	}
}

func TestLoadMissingEqualsFails(t *testing.T) {
	path := writeConfig(t, "not-a-key-value-line\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted a line with no '='")
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.cfg")); err == nil {
		t.Fatal("Load accepted a nonexistent path")
	}
}
