package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 18890, cfg.Gateway.Port)
	assert.Equal(t, "loopback", cfg.Gateway.Bind)
	assert.Equal(t, "api-key", cfg.Upstream.AuthMode)
	assert.Equal(t, 10, cfg.Tools.TimeoutSec)
	assert.Equal(t, 300, cfg.Session.IdleTimeoutSec)
	assert.Equal(t, 64, cfg.Session.MaxConcurrent)
}

func TestLoadParsesYAML(t *testing.T) {
	path := writeConfig(t, `
gateway:
  port: 9001
  auth:
    mode: token
    token: secret-123
upstream:
  endpoint: wss://example.com/v1/live
  apiKey: key-abc
  model: models/test-live
tools:
  timeoutSec: 3
  endpoints:
    get_weather:
      url: https://tools.example.com/weather
      description: Look up current weather
session:
  idleTimeoutSec: 120
  maxConcurrent: 8
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Gateway.Port)
	assert.Equal(t, "secret-123", cfg.Gateway.Auth.Token)
	assert.Equal(t, "wss://example.com/v1/live", cfg.Upstream.Endpoint)
	assert.Equal(t, "models/test-live", cfg.Upstream.Model)
	assert.Equal(t, 3, cfg.Tools.TimeoutSec)
	require.Contains(t, cfg.Tools.Endpoints, "get_weather")
	assert.Equal(t, "https://tools.example.com/weather", cfg.Tools.Endpoints["get_weather"].URL)
	assert.Equal(t, 120, cfg.Session.IdleTimeoutSec)
	assert.Equal(t, 8, cfg.Session.MaxConcurrent)

	// Unset fields fall back to defaults
	assert.Equal(t, "loopback", cfg.Gateway.Bind)
	assert.Equal(t, 5, cfg.Session.DrainTimeoutSec)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "gateway: [not a map")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestExpandSensitiveFields(t *testing.T) {
	t.Setenv("TEST_UPSTREAM_KEY", "expanded-key")
	t.Setenv("TEST_GATEWAY_TOKEN", "expanded-token")

	path := writeConfig(t, `
gateway:
  auth:
    token: ${TEST_GATEWAY_TOKEN}
upstream:
  endpoint: wss://example.com/live
  apiKey: ${TEST_UPSTREAM_KEY}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "expanded-key", cfg.Upstream.APIKey)
	assert.Equal(t, "expanded-token", cfg.Gateway.Auth.Token)
}

func TestExpandEnvVarsUnsetLeftAsIs(t *testing.T) {
	assert.Equal(t, "${DEFINITELY_NOT_SET_12345}", expandEnvVars("${DEFINITELY_NOT_SET_12345}"))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LIVERELAY_GATEWAY_PORT", "7777")
	t.Setenv("LIVERELAY_UPSTREAM_ENDPOINT", "wss://override.example.com/live")
	t.Setenv("LIVERELAY_LOG_LEVEL", "DEBUG")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Gateway.Port)
	assert.Equal(t, "wss://override.example.com/live", cfg.Upstream.Endpoint)
	assert.Equal(t, "debug", cfg.Logging.Level)
}
