package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadForTest(t *testing.T) *Config {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	cfg, err := LoadConfig()
	require.NoError(t, err)
	return cfg
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := loadForTest(t)

	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	assert.Equal(t, "transcriptions", cfg.Queue.Name)
	assert.Equal(t, "UTC", cfg.Queue.Timezone)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, "access_token", cfg.Auth.AccessCookieName)
	assert.Equal(t, "refresh_token", cfg.Auth.RefreshCookieName)
	assert.Equal(t, 15*time.Minute, cfg.AccessExpiry())
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshExpiry())
	assert.Equal(t, "base", cfg.Transcription.ModelName)
	assert.Equal(t, -1, cfg.Transcription.DeviceIndex)
	assert.True(t, cfg.Monitor.Enabled)
	assert.InDelta(t, 0.9, cfg.Monitor.RAMWarnRatio, 1e-9)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db.internal:5432/app")
	t.Setenv("STORAGE_ROOT", "/var/lib/app")
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("QUEUE_NAME", "priority")
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("JWT_SECRET_KEY", "env-secret")
	t.Setenv("ACCESS_TOKEN_EXPIRE_MINUTES", "30")
	t.Setenv("TRANSCRIPTION_MODEL_NAME", "large-v3")
	t.Setenv("MEMORY_MONITOR_ENABLED", "false")

	cfg := loadForTest(t)

	assert.Equal(t, "postgres://db.internal:5432/app", cfg.Database.DSN)
	assert.Equal(t, "/var/lib/app", cfg.Storage.Root)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Address)
	assert.Equal(t, "priority", cfg.Queue.Name)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	assert.Equal(t, "env-secret", cfg.Auth.SecretKey)
	assert.Equal(t, 30*time.Minute, cfg.AccessExpiry())
	assert.Equal(t, "large-v3", cfg.Transcription.ModelName)
	assert.False(t, cfg.Monitor.Enabled)
}

func TestRefreshSecretFallsBackToSecret(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "only-secret")

	cfg := loadForTest(t)

	assert.Equal(t, "only-secret", cfg.Auth.SecretKey)
	assert.Equal(t, "only-secret", cfg.Auth.RefreshSecretKey)
}
