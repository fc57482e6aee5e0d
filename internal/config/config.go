// Package config loads ipgen settings from a YAML file, a .env file and the
// environment, in that order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/zlobste/ipgen/lookup"
	"github.com/zlobste/ipgen/ratelimit"
)

// Environment variables read by Load.
const (
	EnvCatalog       = "IPGEN_CATALOG"
	EnvLogLevel      = "IPGEN_LOG_LEVEL"
	EnvLookupURL     = "IPGEN_LOOKUP_URL"
	EnvLookupTimeout = "IPGEN_LOOKUP_TIMEOUT"
)

// Lookup configures the country lookup used for IPv4 results.
type Lookup struct {
	Disabled  bool          `yaml:"disabled"`
	URL       string        `yaml:"url"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"`
	CacheSize int           `yaml:"cache_size"`
}

// Config is the full set of settings.
type Config struct {
	// Catalog is a file path or http(s) URL. Empty means the built-in
	// locations.
	Catalog   string           `yaml:"catalog"`
	LogLevel  string           `yaml:"log_level"`
	Lookup    Lookup           `yaml:"lookup"`
	RateLimit ratelimit.Config `yaml:"rate_limit"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		LogLevel: "info",
		Lookup: Lookup{
			URL:       lookup.DefaultBaseURL,
			Timeout:   lookup.DefaultTimeout,
			RateLimit: 5,
			CacheSize: lookup.DefaultCacheSize,
		},
		RateLimit: ratelimit.DefaultConfig(),
	}
}

// Load builds a Config from the defaults, the YAML file at path (skipped
// when path is empty), any .env file in the working directory and the
// process environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// A missing .env is normal.
	_ = godotenv.Load()

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv(EnvCatalog); v != "" {
		c.Catalog = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := getenv(EnvLookupURL); v != "" {
		c.Lookup.URL = v
	}
	if v := getenv(EnvLookupTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvLookupTimeout, err)
		}
		c.Lookup.Timeout = d
	}
	return nil
}
