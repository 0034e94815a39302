package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Retry.BatchSize)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay.Std())
	assert.Equal(t, 16*time.Second, cfg.Retry.MaxDelay.Std())
	assert.Equal(t, 30*time.Second, cfg.Retry.SyncInterval.Std())
	assert.False(t, cfg.Remote.Configured())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
remote:
  base_url: https://api.example.com
  api_key: secret
retry:
  batch_size: 25
  sync_interval: 1m
site_id: site-7
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Remote.Configured())
	assert.Equal(t, "https://api.example.com", cfg.Remote.BaseURL)
	assert.Equal(t, 25, cfg.Retry.BatchSize)
	assert.Equal(t, time.Minute, cfg.Retry.SyncInterval.Std())
	assert.Equal(t, "site-7", cfg.SiteID)
	// Untouched sections keep their defaults.
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, "sync.db", cfg.QueuePath)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry:\n  batch_size: -1\n"), 0o600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "batch_size")
}

func TestRemoteConfigured(t *testing.T) {
	assert.False(t, Remote{}.Configured())
	assert.False(t, Remote{BaseURL: "https://x"}.Configured())
	assert.False(t, Remote{BaseURL: " ", APIKey: "k"}.Configured())
	assert.True(t, Remote{BaseURL: "https://x", APIKey: "k"}.Configured())
}
