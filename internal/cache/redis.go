package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ibh-daai/bone-mineral-density/internal/domain"
)

const keyPrefix = "bmd:processed:"

// RedisTracker stores processed SOP instance UIDs in Redis with a TTL
type RedisTracker struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisTracker connects to the Redis server named by config.RedisURL
func NewRedisTracker(config domain.CacheConfig) (*RedisTracker, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisTracker{
		redis: client,
		ttl:   config.DefaultTTL,
	}, nil
}

func key(sopInstanceUID string) string {
	return keyPrefix + sopInstanceUID
}

// Seen reports whether the instance key exists
func (r *RedisTracker) Seen(ctx context.Context, sopInstanceUID string) (bool, error) {
	n, err := r.redis.Exists(ctx, key(sopInstanceUID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check processed instance: %w", err)
	}
	return n > 0, nil
}

// MarkProcessed stores the instance key. A zero TTL keeps it forever.
func (r *RedisTracker) MarkProcessed(ctx context.Context, sopInstanceUID string) error {
	value := time.Now().UTC().Format(time.RFC3339)
	if err := r.redis.Set(ctx, key(sopInstanceUID), value, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to mark processed instance: %w", err)
	}
	return nil
}

// ProcessedAt returns when an instance was marked, or redis.Nil if it never was
func (r *RedisTracker) ProcessedAt(ctx context.Context, sopInstanceUID string) (time.Time, error) {
	val, err := r.redis.Get(ctx, key(sopInstanceUID)).Result()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, val)
}

// Forget deletes the instance key
func (r *RedisTracker) Forget(ctx context.Context, sopInstanceUID string) error {
	return r.redis.Del(ctx, key(sopInstanceUID)).Err()
}

// Ping checks the connection
func (r *RedisTracker) Ping(ctx context.Context) error {
	return r.redis.Ping(ctx).Err()
}

// Close closes the Redis client
func (r *RedisTracker) Close() error {
	return r.redis.Close()
}
