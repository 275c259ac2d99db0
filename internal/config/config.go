// ABOUTME: aiform configuration with storage and preference backend selection.
// ABOUTME: JSON file under XDG_CONFIG_HOME, overridden by AIFORM_* environment variables.

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/harperreed/aiform/internal/charm"
	"github.com/harperreed/aiform/internal/prefs"
	"github.com/harperreed/aiform/internal/storage"
)

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"

	PreferencesBadger = "badger"
	PreferencesCharm  = "charm"
)

// Environment variables that override file values.
const (
	EnvBackend     = "AIFORM_BACKEND"
	EnvDataDir     = "AIFORM_DATA_DIR"
	EnvDatabaseURL = "AIFORM_DATABASE_URL"
	EnvPreferences = "AIFORM_PREFERENCES"
	EnvLogLevel    = "AIFORM_LOG_LEVEL"
	EnvLogFormat   = "AIFORM_LOG_FORMAT"
)

// Config stores aiform configuration.
type Config struct {
	// Backend selects the storage backend: "sqlite" (default) or "postgres".
	Backend string `json:"backend,omitempty"`

	// DataDir is the root directory for local data. SQLite puts aiform.db
	// here and badger preferences live in prefs/. Supports ~ expansion.
	// Defaults to ~/.local/share/aiform.
	DataDir string `json:"data_dir,omitempty"`

	// DatabaseURL is the Postgres connection string.
	DatabaseURL string `json:"database_url,omitempty"`

	// Preferences selects where the timezone preference lives: "badger"
	// (default) or "charm".
	Preferences string `json:"preferences,omitempty"`

	LogLevel  string `json:"log_level,omitempty"`
	LogFormat string `json:"log_format,omitempty"`
}

// GetBackend returns the configured backend, defaulting to "sqlite".
func (c *Config) GetBackend() string {
	if c.Backend == "" {
		return BackendSQLite
	}
	return c.Backend
}

// GetPreferences returns the configured preference backend, defaulting to "badger".
func (c *Config) GetPreferences() string {
	if c.Preferences == "" {
		return PreferencesBadger
	}
	return c.Preferences
}

// GetDataDir returns the configured data directory with ~ expanded,
// defaulting to the standard XDG data directory.
func (c *Config) GetDataDir() string {
	if c.DataDir == "" {
		return storage.DataDir()
	}
	return ExpandPath(c.DataDir)
}

// GetLogLevel returns the configured log level, defaulting to "warn".
func (c *Config) GetLogLevel() string {
	if c.LogLevel == "" {
		return "warn"
	}
	return c.LogLevel
}

// ApplyEnv overrides file values with any AIFORM_* variables that are set.
func (c *Config) ApplyEnv() {
	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	override(&c.Backend, EnvBackend)
	override(&c.DataDir, EnvDataDir)
	override(&c.DatabaseURL, EnvDatabaseURL)
	override(&c.Preferences, EnvPreferences)
	override(&c.LogLevel, EnvLogLevel)
	override(&c.LogFormat, EnvLogFormat)
}

// ExpandPath expands a leading ~ to the user's home directory.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// OpenStorage creates a Repository implementation based on the configured backend.
func (c *Config) OpenStorage(ctx context.Context) (storage.Repository, error) {
	switch c.GetBackend() {
	case BackendSQLite:
		return storage.Open(filepath.Join(c.GetDataDir(), "aiform.db"))
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres backend requires database_url or %s", EnvDatabaseURL)
		}
		return storage.OpenPostgres(ctx, c.DatabaseURL)
	default:
		return nil, fmt.Errorf("unknown backend: %q", c.Backend)
	}
}

// OpenPreferences opens the preference store on the configured KV backend.
func (c *Config) OpenPreferences(logger zerolog.Logger) (*prefs.Store, error) {
	switch c.GetPreferences() {
	case PreferencesBadger:
		kv, err := prefs.OpenBadger(filepath.Join(c.GetDataDir(), "prefs"), logger)
		if err != nil {
			return nil, err
		}
		return prefs.NewStore(kv), nil
	case PreferencesCharm:
		client, err := charm.Open()
		if err != nil {
			return nil, err
		}
		return prefs.NewStore(client), nil
	default:
		return nil, fmt.Errorf("unknown preferences backend: %q", c.Preferences)
	}
}

// GetConfigPath returns the config file path.
func GetConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, _ := os.UserHomeDir()
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "aiform", "config.json")
}

// Load reads config from disk and applies environment overrides.
func Load() (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(GetConfigPath())
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// Save writes config to disk.
func (c *Config) Save() error {
	path := GetConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
