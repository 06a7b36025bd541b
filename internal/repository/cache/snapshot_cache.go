// Package cache keeps short-lived copies of branch inventory so read-only
// classification does not hit the primary store on every delivery.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mamadbah2/restock/internal/domain/models"
)

// SnapshotCache stores branch inventory snapshots with their fetch time.
type SnapshotCache interface {
	Get(ctx context.Context, tenantID, locationID string) (models.Snapshot, bool, error)
	Put(ctx context.Context, tenantID, locationID string, snapshot models.Snapshot) error
	Invalidate(ctx context.Context, tenantID, locationID string) error
}

func key(tenantID, locationID string) string {
	return fmt.Sprintf("restock:inventory:%s:%s", tenantID, locationID)
}

// RedisSnapshotCache is a SnapshotCache backed by Redis with a fixed TTL.
type RedisSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisSnapshotCache connects to Redis and verifies the connection.
func NewRedisSnapshotCache(ctx context.Context, addr, password string, ttl time.Duration, logger *zap.Logger) (*RedisSnapshotCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &RedisSnapshotCache{client: client, ttl: ttl, logger: logger}, nil
}

// Get returns the cached snapshot, if any.
func (c *RedisSnapshotCache) Get(ctx context.Context, tenantID, locationID string) (models.Snapshot, bool, error) {
	raw, err := c.client.Get(ctx, key(tenantID, locationID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Snapshot{}, false, nil
	}
	if err != nil {
		return models.Snapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot models.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		c.logger.Warn("discarding unreadable snapshot", zap.String("tenant", tenantID), zap.String("location", locationID), zap.Error(err))
		return models.Snapshot{}, false, nil
	}
	return snapshot, true, nil
}

// Put stores a snapshot until the TTL expires.
func (c *RedisSnapshotCache) Put(ctx context.Context, tenantID, locationID string, snapshot models.Snapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := c.client.Set(ctx, key(tenantID, locationID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Invalidate drops the cached snapshot for a branch.
func (c *RedisSnapshotCache) Invalidate(ctx context.Context, tenantID, locationID string) error {
	if err := c.client.Del(ctx, key(tenantID, locationID)).Err(); err != nil {
		return fmt.Errorf("invalidate snapshot: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (c *RedisSnapshotCache) Close() error {
	return c.client.Close()
}

// MemorySnapshotCache is a process-local SnapshotCache with a staleness window.
type MemorySnapshotCache struct {
	mu      sync.Mutex
	entries map[string]models.Snapshot
	ttl     time.Duration
	now     func() time.Time
}

// NewMemorySnapshotCache creates a process-local cache.
func NewMemorySnapshotCache(ttl time.Duration) *MemorySnapshotCache {
	return &MemorySnapshotCache{
		entries: make(map[string]models.Snapshot),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the snapshot if it is younger than the TTL.
func (c *MemorySnapshotCache) Get(_ context.Context, tenantID, locationID string) (models.Snapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot, ok := c.entries[key(tenantID, locationID)]
	if !ok {
		return models.Snapshot{}, false, nil
	}
	if c.ttl > 0 && c.now().Sub(snapshot.FetchedAt) > c.ttl {
		delete(c.entries, key(tenantID, locationID))
		return models.Snapshot{}, false, nil
	}
	return snapshot, true, nil
}

// Put stores a snapshot.
func (c *MemorySnapshotCache) Put(_ context.Context, tenantID, locationID string, snapshot models.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key(tenantID, locationID)] = snapshot
	return nil
}

// Invalidate drops a branch snapshot.
func (c *MemorySnapshotCache) Invalidate(_ context.Context, tenantID, locationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key(tenantID, locationID))
	return nil
}

// NopSnapshotCache never caches anything.
type NopSnapshotCache struct{}

func (NopSnapshotCache) Get(context.Context, string, string) (models.Snapshot, bool, error) {
	return models.Snapshot{}, false, nil
}

func (NopSnapshotCache) Put(context.Context, string, string, models.Snapshot) error { return nil }

func (NopSnapshotCache) Invalidate(context.Context, string, string) error { return nil }
