package config

import (
	"os"
	"path/filepath"
	"testing"
)

func withHome(t *testing.T, dir string) {
	t.Helper()
	old, hadOld := os.LookupEnv("HOME")
	os.Setenv("HOME", dir)
	t.Cleanup(func() {
		if hadOld {
			os.Setenv("HOME", old)
		} else {
			os.Unsetenv("HOME")
		}
	})
}

func TestLoad_WritesDefaultConfigWhenMissing(t *testing.T) {
	dir := t.TempDir()
	withHome(t, dir)
	os.Unsetenv("MAMA_DB_PATH")
	os.Unsetenv("MAMA_DISABLE_HOOKS")

	cfg, warnings, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("expected no warnings on first run, got %v", warnings)
	}
	if cfg.ModelName != "mama-embed-multilingual-small" {
		t.Errorf("ModelName = %q, want default", cfg.ModelName)
	}
	if cfg.EmbeddingDim != 384 {
		t.Errorf("EmbeddingDim = %d, want 384", cfg.EmbeddingDim)
	}

	if _, err := os.Stat(filepath.Join(dir, ".mama", "config.json")); err != nil {
		t.Errorf("expected config.json to be written, stat error: %v", err)
	}
}

func TestLoad_EnvOverridesDBPath(t *testing.T) {
	dir := t.TempDir()
	withHome(t, dir)
	custom := filepath.Join(dir, "custom.db")
	os.Setenv("MAMA_DB_PATH", custom)
	t.Cleanup(func() { os.Unsetenv("MAMA_DB_PATH") })

	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != custom {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, custom)
	}
}

func TestLoad_DisableHooksFlag(t *testing.T) {
	dir := t.TempDir()
	withHome(t, dir)
	os.Setenv("MAMA_DISABLE_HOOKS", "1")
	t.Cleanup(func() { os.Unsetenv("MAMA_DISABLE_HOOKS") })

	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.DisableHooks {
		t.Error("expected DisableHooks to be true when MAMA_DISABLE_HOOKS is set")
	}
}

func TestLoad_InvalidJSONFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	withHome(t, dir)
	mamaDir := filepath.Join(dir, ".mama")
	if err := os.MkdirAll(mamaDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(mamaDir, "config.json"), []byte("{not valid json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, warnings, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(warnings) == 0 {
		t.Error("expected a warning for invalid config JSON")
	}
	if cfg.ModelName != "mama-embed-multilingual-small" {
		t.Errorf("expected fallback to default ModelName, got %q", cfg.ModelName)
	}
}

func TestLegacyOrDefaultDBPath_PrefersLegacyFile(t *testing.T) {
	dir := t.TempDir()
	legacy := filepath.Join(dir, ".mama-memory.db")
	if err := os.WriteFile(legacy, []byte{}, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if got := legacyOrDefaultDBPath(dir); got != legacy {
		t.Errorf("legacyOrDefaultDBPath = %q, want %q", got, legacy)
	}
}

func TestLegacyOrDefaultDBPath_DefaultWhenNoLegacyFile(t *testing.T) {
	dir := t.TempDir()
	want := filepath.Join(dir, ".mama", "mama-memory.db")
	if got := legacyOrDefaultDBPath(dir); got != want {
		t.Errorf("legacyOrDefaultDBPath = %q, want %q", got, want)
	}
}
