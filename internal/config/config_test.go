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
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
thread:
  url: "https://forum.example/t1"
  username: "botuser"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Storage.Provider)
	assert.Equal(t, 2000, cfg.Storage.S3.RequestBudget)
	assert.Equal(t, int64(30), cfg.Decision.ScrapeTimeoutSeconds)
	assert.Equal(t, int64(120), cfg.Decision.MinPostGapMinutes)
	assert.Equal(t, 5, cfg.Decision.MaxPostsPer24h)
	assert.Equal(t, int64(15), cfg.Approval.TimeoutMinutes)
	assert.Equal(t, int64(30), cfg.Orchestrator.LockGraceMinutes)
	assert.False(t, cfg.Cache.Disabled)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
thread:
  url: "https://forum.example/t1"
  username: "botuser"
storage:
  provider: "local"
`)

	t.Setenv("FILE_STORAGE", "AWS")
	t.Setenv("SHOULD_LIMIT_S3", "true")
	t.Setenv("NUM_LIMIT_S3_REQUESTS", "500")
	t.Setenv("USE_CACHE", "false")
	t.Setenv("FORUM_USERNAME", "botuser")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "s3", cfg.Storage.Provider)
	assert.True(t, cfg.Storage.S3.LimitRequests)
	assert.Equal(t, 500, cfg.Storage.S3.RequestBudget)
	assert.True(t, cfg.Cache.Disabled)
	assert.Equal(t, "botuser", cfg.Secrets.ForumUsername)
}

func TestLoadConfigDefaultsDropboxFailover(t *testing.T) {
	path := writeConfig(t, `
thread:
  url: "https://forum.example/t1"
  username: "botuser"
storage:
  provider: "s3"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.NotNil(t, cfg.Storage.S3.FailoverToDbx)
	assert.True(t, *cfg.Storage.S3.FailoverToDbx)
}

func TestLoadConfigDropboxFailoverOptOut(t *testing.T) {
	path := writeConfig(t, `
thread:
  url: "https://forum.example/t1"
  username: "botuser"
storage:
  provider: "s3"
  s3:
    failover_to_dropbox: false
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.NotNil(t, cfg.Storage.S3.FailoverToDbx)
	assert.False(t, *cfg.Storage.S3.FailoverToDbx)
}

func TestLoadConfigRejectsBadSleepBounds(t *testing.T) {
	path := writeConfig(t, `
thread:
  url: "https://forum.example/t1"
decision:
  random_sleep_time_min_minutes: 60
  random_sleep_time_max_minutes: 10
`)

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}
