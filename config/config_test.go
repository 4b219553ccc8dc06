package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigMatchesDocumentedDefaults(t *testing.T) {
	c := DefaultConfig()
	if c.MaxFramesInFlight != DefaultMaxFramesInFlight {
		t.Fatalf("MaxFramesInFlight = %d, want %d", c.MaxFramesInFlight, DefaultMaxFramesInFlight)
	}
	if c.MaxDrawable != dflMaxDrawable || c.MaxMaterial != dflMaxMaterial {
		t.Fatal("unexpected default drawable/material limits")
	}
}

func TestLoadYAMLOverridesOnlyGivenFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	if err := os.WriteFile(path, []byte("maxFramesInFlight: 2\nstagingPoolSize: 4096\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadYAML(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.MaxFramesInFlight != 2 {
		t.Fatalf("MaxFramesInFlight = %d, want 2", c.MaxFramesInFlight)
	}
	if c.StagingPoolSize != 4096 {
		t.Fatalf("StagingPoolSize = %d, want 4096", c.StagingPoolSize)
	}
	if c.MaxDrawable != dflMaxDrawable {
		t.Fatal("unset fields should keep their default value")
	}
}

func TestLoadYAMLMissingFileReturnsError(t *testing.T) {
	if _, err := LoadYAML(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
