package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
)

func setupRedis(t *testing.T) domain.CacheConfig {
	if testing.Short() {
		t.Skip("Skipping Redis integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("Failed to start redis container (Docker may not be available): %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return domain.CacheConfig{
		RedisURL:    fmt.Sprintf("redis://%s:%s/0", host, port.Port()),
		DefaultTTL:  time.Hour,
		MaxRetries:  3,
		PoolSize:    10,
		PoolTimeout: 4 * time.Second,
	}
}

func TestRedisTracker(t *testing.T) {
	config := setupRedis(t)
	ctx := context.Background()

	tracker, err := NewRedisTracker(config)
	require.NoError(t, err)
	defer tracker.Close()

	require.NoError(t, tracker.Ping(ctx))

	seen, err := tracker.Seen(ctx, "1.2.3.1")
	require.NoError(t, err)
	assert.False(t, seen)

	_, err = tracker.ProcessedAt(ctx, "1.2.3.1")
	assert.ErrorIs(t, err, redis.Nil)

	require.NoError(t, tracker.MarkProcessed(ctx, "1.2.3.1"))
	seen, err = tracker.Seen(ctx, "1.2.3.1")
	require.NoError(t, err)
	assert.True(t, seen)

	at, err := tracker.ProcessedAt(ctx, "1.2.3.1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), at, time.Minute)

	require.NoError(t, tracker.Forget(ctx, "1.2.3.1"))
	seen, err = tracker.Seen(ctx, "1.2.3.1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestTracker_SharedThroughRedis(t *testing.T) {
	config := setupRedis(t)
	ctx := context.Background()

	first, err := NewRedisTracker(config)
	require.NoError(t, err)
	second, err := NewRedisTracker(config)
	require.NoError(t, err)

	a, err := NewTracker(10, first, quietLogger())
	require.NoError(t, err)
	defer a.Close()
	b, err := NewTracker(10, second, quietLogger())
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.MarkProcessed(ctx, "1.2.3.9"))

	seen, err := b.Seen(ctx, "1.2.3.9")
	require.NoError(t, err)
	assert.True(t, seen, "a second process sees the instance through redis")

	stats := b.Stats()
	assert.True(t, stats.Distributed)
	assert.Equal(t, 1, stats.MemoryItems, "redis hit warms the memory tier")
}
