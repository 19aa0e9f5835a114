package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/hrsync")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("REMOTE_BASE_URL", "http://hr.example.com/api")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 10*time.Second, cfg.RemoteTimeout)
	assert.Equal(t, 30*time.Second, cfg.AutoSyncInterval)
	assert.Equal(t, 50, cfg.SyncBatchSize)
	assert.Equal(t, 4, cfg.SyncWorkers)
	assert.False(t, cfg.AutoSyncEnabled)
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SYNC_BATCH_SIZE", "200")
	t.Setenv("SYNC_WORKERS", "8")
	t.Setenv("AUTO_SYNC_INTERVAL", "2m")
	t.Setenv("AUTO_SYNC_ENABLED", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 200, cfg.SyncBatchSize)
	assert.Equal(t, 8, cfg.SyncWorkers)
	assert.Equal(t, 2*time.Minute, cfg.AutoSyncInterval)
	assert.True(t, cfg.AutoSyncEnabled)
}

func TestLoadConfig_MissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_URL", "")

	_, err := LoadConfig()
	assert.EqualError(t, err, "DATABASE_URL is required")
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	setRequired(t)

	t.Setenv("AUTO_SYNC_INTERVAL", "fast")
	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("AUTO_SYNC_INTERVAL", "30s")
	t.Setenv("SYNC_BATCH_SIZE", "-5")
	_, err = LoadConfig()
	assert.Error(t, err)
}
