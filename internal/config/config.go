// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration
type Config struct {
	// Addr is the listen address of the dashboard API.
	Addr string `env:"ADDR" envDefault:":8080"`
	// UpstreamURL is the base URL of the alerts API.
	UpstreamURL string `env:"UPSTREAM_URL" envDefault:"http://localhost:8001"`
	// UpstreamTimeout bounds each upstream request.
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"15s"`

	Cache  CacheConfig
	Entity EntityConfig
}

// CacheConfig selects and tunes the alert cache.
type CacheConfig struct {
	// Backend is the durable store: "file", "sqlite" or "memory".
	Backend string `env:"CACHE_BACKEND" envDefault:"file"`
	// Dir is the file-backend directory. Empty means a default under the
	// user's home directory.
	Dir string `env:"CACHE_DIR"`
	// DBPath is the sqlite-backend database file.
	DBPath string `env:"CACHE_DB_PATH" envDefault:"alertdeck_cache.db"`
	// FreshnessWindow is how long today's cached alerts stay fresh.
	FreshnessWindow time.Duration `env:"CACHE_FRESHNESS_WINDOW" envDefault:"30m"`
}

// EntityConfig tunes entity deduplication on the trends view.
type EntityConfig struct {
	// Threshold is the minimum similarity for merging entity variants.
	Threshold float64 `env:"ENTITY_THRESHOLD" envDefault:"0.7"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "file", "sqlite", "memory":
	default:
		return fmt.Errorf("CACHE_BACKEND must be file, sqlite or memory, got %q", c.Cache.Backend)
	}
	if c.Cache.FreshnessWindow <= 0 {
		return fmt.Errorf("CACHE_FRESHNESS_WINDOW must be positive, got %s", c.Cache.FreshnessWindow)
	}
	if c.Entity.Threshold <= 0 || c.Entity.Threshold > 1 {
		return fmt.Errorf("ENTITY_THRESHOLD must be in (0,1], got %v", c.Entity.Threshold)
	}
	return nil
}
