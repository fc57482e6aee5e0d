package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zlobste/ipgen/ratelimit"
)

const sampleConfig = `
catalog: locations.json
log_level: debug
lookup:
  disabled: true
  timeout: 2s
rate_limit:
  window: 1s
  threshold: 3
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ratelimit.DefaultConfig(), cfg.RateLimit)
	require.Equal(t, 5*time.Second, cfg.Lookup.Timeout)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ipgen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.True(t, cfg.Lookup.Disabled)
	require.Equal(t, 2*time.Second, cfg.Lookup.Timeout)
	require.Equal(t, time.Second, cfg.RateLimit.Window)
	require.Equal(t, 3, cfg.RateLimit.Threshold)
	// Unset keys keep their defaults.
	require.Equal(t, ratelimit.DefaultCooldown, cfg.RateLimit.Cooldown)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rate_limit: [1, 2"), 0o600))
	_, err = Load(path)
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvCatalog:       "https://example.com/locations.json",
		EnvLogLevel:      "warn",
		EnvLookupURL:     "http://127.0.0.1:9/",
		EnvLookupTimeout: "750ms",
	}
	cfg := Default()
	require.NoError(t, cfg.applyEnv(func(k string) string { return env[k] }))
	require.Equal(t, env[EnvCatalog], cfg.Catalog)
	require.Equal(t, "warn", cfg.LogLevel)
	require.Equal(t, env[EnvLookupURL], cfg.Lookup.URL)
	require.Equal(t, 750*time.Millisecond, cfg.Lookup.Timeout)

	env[EnvLookupTimeout] = "soon"
	require.Error(t, cfg.applyEnv(func(k string) string { return env[k] }))
}
