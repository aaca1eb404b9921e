package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds everything a single invocation needs. It is loaded once
// from the environment and passed down explicitly; no component reads
// ambient globals.
type Config struct {
	// DatabaseURL and AuthToken configure the remote Turso primary.
	// Leaving DatabaseURL empty runs in local-only mode.
	DatabaseURL string `envconfig:"CWATCH_DATABASE_URL"`
	AuthToken   string `envconfig:"CWATCH_AUTH_TOKEN"`

	// LocalDBPath is the embedded fallback store. Defaults to
	// ~/.cwatch/cwatch.db.
	LocalDBPath string `envconfig:"CWATCH_LOCAL_DB_PATH"`

	MaxPayloadBytes int64         `envconfig:"CWATCH_MAX_PAYLOAD_BYTES" default:"5242880"`
	BackendTimeout  time.Duration `envconfig:"CWATCH_BACKEND_TIMEOUT" default:"3s"`
	HealthInterval  time.Duration `envconfig:"CWATCH_HEALTH_INTERVAL" default:"30s"`

	Debug bool `envconfig:"CWATCH_DEBUG"`
}

// Load reads configuration from environment variables and resolves the
// local store path.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	if cfg.LocalDBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving local store path: %w", err)
		}
		cfg.LocalDBPath = filepath.Join(home, ".cwatch", "cwatch.db")
	}

	return &cfg, nil
}

// HasPrimary reports whether a remote primary backend is configured.
func (c *Config) HasPrimary() bool {
	return c.DatabaseURL != ""
}

// ProbeStatePath is the health-probe cache file, kept next to the
// local database so concurrent short-lived processes share it.
func (c *Config) ProbeStatePath() string {
	return filepath.Join(filepath.Dir(c.LocalDBPath), "probe_state.json")
}
