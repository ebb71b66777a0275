package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/admitgw/internal/auth"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// ============================================================
// TestLoad_Defaults
// ============================================================

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvPrefix+"AUTH_SECRET", testSecret)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, 60, cfg.RateLimit.PerMinute)
	assert.Equal(t, 1000, cfg.RateLimit.PerHour)
	assert.Equal(t, 10000, cfg.RateLimit.PerDay)
	assert.Equal(t, time.Hour, cfg.RateLimit.SweepInterval.Duration())
	assert.Equal(t, 24*time.Hour, cfg.RateLimit.Retention.Duration())
	assert.True(t, cfg.Audit.Enabled)
	assert.Equal(t, "json", cfg.Log.Format)
}

// ============================================================
// TestLoad_YAMLFile
// ============================================================

func TestLoad_YAMLFile(t *testing.T) {
	path := writeTempFile(t, "admitgw.yaml", `
listen: ":9090"
auth:
  enabled: true
  secret: "`+testSecret+`"
  issuer: "admitgw"
  publicPaths:
    - /healthz
    - /public/.*
rateLimit:
  perMinute: 10
  perHour: 100
  perDay: 1000
  sweepInterval: 30m
  retention: 48h
  globalRPS: 500
audit:
  enabled: true
  output: stderr
  bufferSize: 256
log:
  level: debug
  format: console
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, testSecret, cfg.Auth.Secret)
	assert.Equal(t, "admitgw", cfg.Auth.Issuer)
	assert.Equal(t, []string{"/healthz", "/public/.*"}, cfg.Auth.PublicPaths)
	assert.Equal(t, 10, cfg.RateLimit.PerMinute)
	assert.Equal(t, 30*time.Minute, cfg.RateLimit.SweepInterval.Duration())
	assert.Equal(t, 48*time.Hour, cfg.RateLimit.Retention.Duration())
	assert.Equal(t, 500, cfg.RateLimit.GlobalRPS)
	assert.Equal(t, "stderr", cfg.Audit.Output)
	assert.Equal(t, 256, cfg.Audit.BufferSize)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

// ============================================================
// TestLoad_EnvOverrides
// ============================================================

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeTempFile(t, "admitgw.yaml", `
listen: ":9090"
auth:
  enabled: true
  secret: "`+testSecret+`"
rateLimit:
  perMinute: 10
`)

	t.Setenv(EnvPrefix+"LISTEN", ":7070")
	t.Setenv(EnvPrefix+"RATELIMIT_PER_MINUTE", "99")
	t.Setenv(EnvPrefix+"AUTH_PUBLIC_PATHS", "/healthz, /status")
	t.Setenv(EnvPrefix+"AUTH_TOKEN_TTL_SECONDS", "120")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Listen, "environment wins over file")
	assert.Equal(t, 99, cfg.RateLimit.PerMinute)
	assert.Equal(t, []string{"/healthz", "/status"}, cfg.Auth.PublicPaths)
	assert.Equal(t, 2*time.Minute, cfg.Auth.TokenTTL)
}

// ============================================================
// TestLoad_Failures
// ============================================================

func TestLoad_Failures(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeTempFile(t, "bad.yaml", "listen: [")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("auth enabled without secret is fatal", func(t *testing.T) {
		path := writeTempFile(t, "nosecret.yaml", `
auth:
  enabled: true
`)
		_, err := Load(path)
		assert.ErrorIs(t, err, auth.ErrMissingSecret)
	})

	t.Run("weak secret is fatal", func(t *testing.T) {
		path := writeTempFile(t, "weak.yaml", `
auth:
  enabled: true
  secret: "short"
`)
		_, err := Load(path)
		assert.ErrorIs(t, err, auth.ErrWeakSecret)
	})

	t.Run("auth disabled needs no secret", func(t *testing.T) {
		path := writeTempFile(t, "disabled.yaml", `
auth:
  enabled: false
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.False(t, cfg.Auth.Enabled)
	})

	t.Run("invalid log format", func(t *testing.T) {
		path := writeTempFile(t, "logfmt.yaml", `
auth:
  enabled: false
log:
  format: xml
`)
		_, err := Load(path)
		assert.Error(t, err)
	})
}
