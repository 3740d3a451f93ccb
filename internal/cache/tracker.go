// Package cache remembers which structured report instances were already
// handled so archive polling does not interpret the same report twice.
package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
)

// Tracker is a two-tier processed-instance tracker: an in-memory LRU holds
// recent SOP instance UIDs and an optional Redis tier shares them between
// processes and restarts.
type Tracker struct {
	memory *lru.Cache
	redis  *RedisTracker
	logger *logrus.Logger

	mu     sync.Mutex
	hits   int64
	misses int64
}

// TrackerStats reports how often lookups were answered by each tier
type TrackerStats struct {
	MemoryItems int   `json:"memory_items"`
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Distributed bool  `json:"distributed"`
}

// NewTracker creates a tracker remembering up to maxItems UIDs in memory.
// redis may be nil for a single-process deployment.
func NewTracker(maxItems int, redis *RedisTracker, logger *logrus.Logger) (*Tracker, error) {
	if maxItems <= 0 {
		maxItems = 1000
	}
	memory, err := lru.New(maxItems)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	return &Tracker{
		memory: memory,
		redis:  redis,
		logger: logger,
	}, nil
}

// Seen reports whether a SOP instance was marked processed
func (t *Tracker) Seen(ctx context.Context, sopInstanceUID string) (bool, error) {
	if t.memory.Contains(sopInstanceUID) {
		t.record(true)
		return true, nil
	}
	if t.redis == nil {
		t.record(false)
		return false, nil
	}

	seen, err := t.redis.Seen(ctx, sopInstanceUID)
	if err != nil {
		t.logger.WithFields(logrus.Fields{
			"sop_instance_uid": sopInstanceUID,
			"error":            err,
		}).Warn("Redis tracker lookup failed")
		return false, err
	}
	if seen {
		// warm the memory tier
		t.memory.Add(sopInstanceUID, struct{}{})
	}
	t.record(seen)
	return seen, nil
}

// MarkProcessed remembers a SOP instance in every tier
func (t *Tracker) MarkProcessed(ctx context.Context, sopInstanceUID string) error {
	t.memory.Add(sopInstanceUID, struct{}{})
	if t.redis == nil {
		return nil
	}
	if err := t.redis.MarkProcessed(ctx, sopInstanceUID); err != nil {
		return fmt.Errorf("marking %s processed: %w", sopInstanceUID, err)
	}
	return nil
}

// Forget drops a SOP instance so it is processed again
func (t *Tracker) Forget(ctx context.Context, sopInstanceUID string) error {
	t.memory.Remove(sopInstanceUID)
	if t.redis == nil {
		return nil
	}
	return t.redis.Forget(ctx, sopInstanceUID)
}

// Stats returns lookup counters
func (t *Tracker) Stats() TrackerStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TrackerStats{
		MemoryItems: t.memory.Len(),
		Hits:        t.hits,
		Misses:      t.misses,
		Distributed: t.redis != nil,
	}
}

// Close releases the Redis connection, if any
func (t *Tracker) Close() error {
	if t.redis == nil {
		return nil
	}
	return t.redis.Close()
}

func (t *Tracker) record(hit bool) {
	t.mu.Lock()
	if hit {
		t.hits++
	} else {
		t.misses++
	}
	t.mu.Unlock()
}
