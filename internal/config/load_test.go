package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "memory", cfg.Bus.Driver)
	assert.Equal(t, "memory", cfg.Dedup.Driver)
	assert.Equal(t, 168, cfg.Dedup.RetentionHours)
	assert.Equal(t, "@hourly", cfg.Dedup.SweepSchedule)
	assert.False(t, cfg.LLM.ChatEnabled())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("TASKFLOW_SERVER_PORT", "9090")
	t.Setenv("TASKFLOW_SERVER_LOG_LEVEL", "debug")
	t.Setenv("TASKFLOW_STORE_DRIVER", "postgres")
	t.Setenv("TASKFLOW_STORE_DATABASE_URL", "postgres://localhost:5432/taskflow")
	t.Setenv("TASKFLOW_BUS_DRIVER", "nats")
	t.Setenv("TASKFLOW_BUS_NATS_URL", "nats://localhost:4222")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost:5432/taskflow", cfg.Store.DatabaseURL)
	assert.Equal(t, "nats", cfg.Bus.Driver)
	assert.Equal(t, "nats://localhost:4222", cfg.Bus.NATSURL)
}

// Keys without defaults are only visible to Unmarshal through an explicit
// binding, so they get their own coverage.
func TestLoadReadsUndefaultedKeysFromEnvironment(t *testing.T) {
	t.Setenv("TASKFLOW_DEDUP_DRIVER", "redis")
	t.Setenv("TASKFLOW_DEDUP_REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Dedup.Driver)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Dedup.RedisURL)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("TASKFLOW_STORE_DRIVER", "dynamodb")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsPostgresWithoutURL(t *testing.T) {
	t.Setenv("TASKFLOW_STORE_DRIVER", "postgres")
	t.Setenv("TASKFLOW_STORE_DATABASE_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	t.Setenv("TASKFLOW_SERVER_LOG_LEVEL", "verbose")

	_, err := Load()
	assert.Error(t, err)
}

func TestChatEnabledRequiresAPIKey(t *testing.T) {
	t.Setenv("TASKFLOW_LLM_GEMINI_API_KEY", "test-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.LLM.ChatEnabled())
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.ModelName)
}
