package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backstop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 50, cfg.Cache.Capacity)
	assert.Equal(t, 12*time.Second, cfg.Dispatch.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "AIzaSyDummyKeyForTesting1234567890123456")

	path := writeConfig(t, `
listen: ":9090"
db_path: "test.db"
cache:
  ttl: 5m
  capacity: 30
dispatch:
  timeout: 10s
  max_wait: 500ms
providers:
  - id: gemini
    vendor: google
    tier: free
    priority: 1
    daily_limit: 1500
    monthly_limit: -1
    min_interval: 4s
    model: gemini-2.0-flash
    response_shape: gemini
    api_key: ${TEST_GEMINI_KEY}
  - id: offline
    response_shape: mock
    priority: 9
    daily_limit: -1
    monthly_limit: -1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 30, cfg.Cache.Capacity)
	assert.Equal(t, 500*time.Millisecond, cfg.Dispatch.MaxWait)
	require.Len(t, cfg.Providers, 2)

	gem := cfg.Providers[0]
	assert.Equal(t, "AIzaSyDummyKeyForTesting1234567890123456", gem.APIKey, "env var not expanded")
	assert.Equal(t, 4*time.Second, gem.MinInterval)
	assert.Equal(t, -1, gem.MonthlyLimit)
	assert.True(t, gem.NeedsCredential())
	assert.Equal(t, TierFree, gem.EffectiveTier())

	mock, ok := cfg.Provider("offline")
	require.True(t, ok)
	assert.False(t, mock.NeedsCredential())
	assert.Equal(t, TierMock, mock.EffectiveTier())
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadRejectsUnknownShape(t *testing.T) {
	path := writeConfig(t, `
providers:
  - id: x
    response_shape: telepathy
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ResponseShape")
}

func TestLoadRejectsDuplicateIDs(t *testing.T) {
	path := writeConfig(t, `
providers:
  - id: x
    response_shape: mock
  - id: x
    response_shape: mock
`)
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrDuplicateProvider)
}
