package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	t.Setenv("DB_HOST", "test-host")
	t.Setenv("DB_MAX_OPEN_CONNS", "20")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("STORAGE_BACKEND", "minio")
	t.Setenv("MAX_FILE_SIZE", "1024")
	t.Setenv("CLEANUP_INTERVAL_HOURS", "2")
	t.Setenv("PURGE_RETENTION_DAYS", "7")

	cfg := Load()

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.True(t, cfg.Storage.MinIO.UseSSL)
	assert.Equal(t, "minio", cfg.Storage.Backend)
	assert.Equal(t, int64(1024), cfg.Limits.MaxFileSize)
	assert.Equal(t, 2*time.Hour, cfg.Reclaim.SweepInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.Reclaim.PurgeRetention)
}

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, int64(50<<20), cfg.Limits.MaxFileSize)
	assert.Equal(t, 1, cfg.Limits.DefaultMaxDownloads)
	assert.Equal(t, 100, cfg.Limits.MaxDownloadsLimit)
	assert.Equal(t, 24, cfg.Limits.DefaultExpiryHours)
	assert.Equal(t, 168, cfg.Limits.MaxExpiryHours)
	assert.Equal(t, time.Hour, cfg.Reclaim.SweepInterval)
	assert.Equal(t, 15*time.Minute, cfg.Reclaim.ReconcileGrace)
}

func TestLocation(t *testing.T) {
	cfg := &AppConfig{Timezone: "Not/AZone"}
	assert.Equal(t, time.UTC, cfg.Location())

	cfg.Timezone = "UTC"
	assert.Equal(t, "UTC", cfg.Location().String())
}

func TestGetEnv(t *testing.T) {
	key := "TEST_ENV_VAR"
	os.Setenv(key, "value")
	defer os.Unsetenv(key)

	assert.Equal(t, "value", getEnv(key, "default"))
	assert.Equal(t, "default", getEnv("NON_EXISTENT", "default"))
}

func TestGetEnvBool(t *testing.T) {
	key := "TEST_BOOL_VAR"

	os.Setenv(key, "true")
	assert.True(t, getEnvBool(key, false))

	os.Setenv(key, "false")
	assert.False(t, getEnvBool(key, true))

	os.Setenv(key, "invalid")
	assert.True(t, getEnvBool(key, true))

	os.Unsetenv(key)
	assert.True(t, getEnvBool(key, true))
}

func TestGetEnvInt(t *testing.T) {
	key := "TEST_INT_VAR"

	os.Setenv(key, "123")
	assert.Equal(t, 123, getEnvInt(key, 0))

	os.Setenv(key, "invalid")
	assert.Equal(t, 10, getEnvInt(key, 10))

	os.Setenv(key, "-4")
	assert.Equal(t, 10, getEnvInt(key, 10))

	os.Unsetenv(key)
	assert.Equal(t, 10, getEnvInt(key, 10))
}
