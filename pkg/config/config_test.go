package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Queue.BaseDelay)
	assert.Equal(t, 300*time.Second, cfg.Queue.MaxDelay)
	assert.Equal(t, 5, cfg.Queue.Concurrency)
	assert.Equal(t, 20, cfg.Queue.BatchSize)
	assert.Equal(t, 5*time.Minute, cfg.Queue.DrainInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.Queue.Retention)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "offline_operations", cfg.Database.Table)
	assert.False(t, cfg.SQS.Enabled())
}

func TestParse_Overrides(t *testing.T) {
	t.Setenv("QUEUE_MAX_ATTEMPTS", "3")
	t.Setenv("QUEUE_CONCURRENCY", "2")
	t.Setenv("QUEUE_DRAIN_INTERVAL", "30s")
	t.Setenv("STORE_DRIVER", "redis")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("SQS_QUEUE_URL", "https://sqs.eu-west-1.amazonaws.com/123/health")
	t.Setenv("LOG_PRETTY", "false")

	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 2, cfg.Queue.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Queue.DrainInterval)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, "cache.internal:6380", cfg.Redis.Addr())
	assert.True(t, cfg.SQS.Enabled())
	assert.False(t, cfg.Log.Pretty)
}

func TestParse_InvalidDuration(t *testing.T) {
	t.Setenv("QUEUE_BASE_DELAY", "soon")

	_, err := Parse()
	assert.Error(t, err)
}
