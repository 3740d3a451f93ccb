package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLiteConfig(t *testing.T) {
	cfg := DefaultLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.Empty(t, cfg.RedisURL)
	assert.False(t, cfg.RecordZeroHipChange)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadLiteConfig_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 1000, cfg.CacheMaxItems)
}

func TestLoadLiteConfig_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("BMD_DATA_DIR", "/tmp/test-bmd")
	t.Setenv("BMD_CACHE_MAX_ITEMS", "500")
	t.Setenv("BMD_CACHE_TTL", "12h")
	t.Setenv("BMD_REDIS_URL", "redis://localhost:6379/2")
	t.Setenv("BMD_RECORD_ZERO_HIP_CHANGE", "true")
	t.Setenv("BMD_LOG_LEVEL", "DEBUG")

	cfg := LoadLiteConfig()

	assert.Equal(t, "/tmp/test-bmd", cfg.DataDir)
	assert.Equal(t, 500, cfg.CacheMaxItems)
	assert.Equal(t, 12*time.Hour, cfg.CacheTTL)
	assert.Equal(t, "redis://localhost:6379/2", cfg.RedisURL)
	assert.True(t, cfg.RecordZeroHipChange)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadLiteConfig_InvalidValuesKeepDefaults(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("BMD_CACHE_MAX_ITEMS", "-4")
	t.Setenv("BMD_CACHE_TTL", "soon")
	t.Setenv("BMD_RECORD_ZERO_HIP_CHANGE", "sometimes")

	cfg := LoadLiteConfig()

	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.False(t, cfg.RecordZeroHipChange)
}

func TestLiteConfig_ResultsDBPath(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.bmd"}

	assert.Equal(t, "/home/user/.bmd/results.db", cfg.ResultsDBPath())
	assert.Equal(t, "/home/user/.bmd/exports", cfg.ExportDir())
}

func TestLiteConfig_EnsureDataDir(t *testing.T) {
	cfg := &LiteConfig{DataDir: filepath.Join(t.TempDir(), "bmd")}

	err := cfg.EnsureDataDir()
	require.NoError(t, err)

	_, err = os.Stat(cfg.DataDir)
	assert.NoError(t, err)

	_, err = os.Stat(cfg.ExportDir())
	assert.NoError(t, err)
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"BMD_DATA_DIR",
		"BMD_CACHE_MAX_ITEMS",
		"BMD_CACHE_TTL",
		"BMD_REDIS_URL",
		"BMD_RECORD_ZERO_HIP_CHANGE",
		"BMD_LOG_LEVEL",
		"BMD_LOG_FORMAT",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}
