// ABOUTME: Tests for aiform configuration management.
// ABOUTME: Covers load, save, env overrides, backend selection, and path expansion.
package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvBackend, EnvDataDir, EnvDatabaseURL, EnvPreferences, EnvLogLevel, EnvLogFormat} {
		t.Setenv(key, "")
	}
}

func TestDefaults(t *testing.T) {
	cfg := &Config{}
	if got := cfg.GetBackend(); got != "sqlite" {
		t.Errorf("GetBackend() = %q, want sqlite", got)
	}
	if got := cfg.GetPreferences(); got != "badger" {
		t.Errorf("GetPreferences() = %q, want badger", got)
	}
	if got := cfg.GetLogLevel(); got != "warn" {
		t.Errorf("GetLogLevel() = %q, want warn", got)
	}
	if got := cfg.GetDataDir(); got == "" {
		t.Error("GetDataDir() returned empty string")
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := map[string]string{
		"":              "",
		"/tmp/foo":      "/tmp/foo",
		"~":             home,
		"~/data/aiform": filepath.Join(home, "data/aiform"),
		"data/aiform":   "data/aiform",
	}
	for in, want := range tests {
		if got := ExpandPath(in); got != want {
			t.Errorf("ExpandPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetDataDirExpandsTilde(t *testing.T) {
	home, _ := os.UserHomeDir()

	cfg := &Config{DataDir: "~/aiform-data"}
	if got, want := cfg.GetDataDir(), filepath.Join(home, "aiform-data"); got != want {
		t.Errorf("GetDataDir() = %q, want %q", got, want)
	}
}

func TestLoadNonExistentConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() with no config file should not error: %v", err)
	}
	if cfg.Backend != "" || cfg.DataDir != "" {
		t.Errorf("expected empty config, got %+v", cfg)
	}
}

func TestSaveAndLoad(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := &Config{
		Backend:     "postgres",
		DatabaseURL: "postgres://localhost/aiform",
		Preferences: "charm",
	}
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if *loaded != *cfg {
		t.Errorf("loaded %+v, want %+v", loaded, cfg)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if err := (&Config{Backend: "sqlite", LogLevel: "info"}).Save(); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvBackend, "postgres")
	t.Setenv(EnvDatabaseURL, "postgres://env/aiform")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Backend != "postgres" || cfg.DatabaseURL != "postgres://env/aiform" {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want file value info", cfg.LogLevel)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	configDir := filepath.Join(tmpDir, "aiform")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.json"), []byte("invalid json"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(); err == nil {
		t.Error("expected error for invalid JSON config")
	}
}

func TestGetConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	if got, want := GetConfigPath(), filepath.Join(tmpDir, "aiform", "config.json"); got != want {
		t.Errorf("GetConfigPath() = %q, want %q", got, want)
	}
}

func TestOpenStorageSQLite(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := &Config{Backend: "sqlite", DataDir: tmpDir}

	repo, err := cfg.OpenStorage(context.Background())
	if err != nil {
		t.Fatalf("OpenStorage() for sqlite failed: %v", err)
	}
	defer repo.Close()

	if _, err := os.Stat(filepath.Join(tmpDir, "aiform.db")); os.IsNotExist(err) {
		t.Error("expected aiform.db to be created")
	}
}

func TestOpenStoragePostgresRequiresURL(t *testing.T) {
	cfg := &Config{Backend: "postgres"}
	if _, err := cfg.OpenStorage(context.Background()); err == nil {
		t.Error("expected error without database_url")
	}
}

func TestOpenStorageInvalidBackend(t *testing.T) {
	cfg := &Config{Backend: "invalid", DataDir: t.TempDir()}
	if _, err := cfg.OpenStorage(context.Background()); err == nil {
		t.Error("expected error for invalid backend")
	}
}

func TestOpenPreferencesBadger(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := &Config{DataDir: tmpDir}

	store, err := cfg.OpenPreferences(zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenPreferences() failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.SetSelectedTimezone(ctx, "Asia/Tokyo"); err != nil {
		t.Fatalf("SetSelectedTimezone failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "prefs")); err != nil {
		t.Errorf("expected prefs directory: %v", err)
	}
}

func TestOpenPreferencesInvalid(t *testing.T) {
	cfg := &Config{Preferences: "floppy", DataDir: t.TempDir()}
	if _, err := cfg.OpenPreferences(zerolog.Nop()); err == nil {
		t.Error("expected error for invalid preferences backend")
	}
}
