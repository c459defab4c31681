package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, []string{"http://localhost:5173", "http://127.0.0.1:5173"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Empty(t, cfg.Redis.URL)
	assert.Zero(t, cfg.Limits.MaxContracts)
	assert.Equal(t, "http://127.0.0.1:8000", cfg.Client.BaseURL)
	assert.Equal(t, uint32(3), cfg.Client.BreakerFailures)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
  cors_origins: ["https://hedge.example.com"]
logging:
  level: debug
  format: console
cache:
  enabled: false
  ttl: 1m
limits:
  max_contracts: 500
  max_notional_ratio: 2.5
client:
  base_url: http://hedge:9090
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, []string{"https://hedge.example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 500.0, cfg.Limits.MaxContracts)
	assert.Equal(t, 2.5, cfg.Limits.MaxNotionalRatio)
	assert.Equal(t, "http://hedge:9090", cfg.Client.BaseURL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HEDGE_LOGGING_LEVEL", "warn")
	t.Setenv("HEDGE_LIMITS_MAX_CONTRACTS", "250")
	t.Setenv("PORT", "7000")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 250.0, cfg.Limits.MaxContracts)
	assert.Equal(t, "7000", cfg.Server.Port)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: chatty
  format: xml
limits:
  max_contracts: -1
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
	assert.Contains(t, err.Error(), "logging.format")
	assert.Contains(t, err.Error(), "limits.max_contracts")
}
