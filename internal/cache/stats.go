package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/core"
	"github.com/Gaza-Shuhada/gazashuhada-sub001/internal/logging"
)

const statsKey = "registry:stats:v1"

// StatsCache keeps the last computed core.RegistryStats in Redis. Redis
// errors are logged and treated as misses so a cache outage never fails a
// read.
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ core.StatsCache = (*StatsCache)(nil)

// NewStatsCache returns a cache whose entries expire after ttl.
func NewStatsCache(client *redis.Client, ttl time.Duration) *StatsCache {
	return &StatsCache{client: client, ttl: ttl}
}

func (c *StatsCache) Get(ctx context.Context) (core.RegistryStats, bool) {
	raw, err := c.client.Get(ctx, statsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.RegistryStats{}, false
	}
	if err != nil {
		logging.FromContext(ctx).Warn("stats cache read failed", "error", err)
		return core.RegistryStats{}, false
	}

	var stats core.RegistryStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		logging.FromContext(ctx).Warn("stats cache entry is corrupt", "error", err)
		return core.RegistryStats{}, false
	}
	return stats, true
}

func (c *StatsCache) Set(ctx context.Context, stats core.RegistryStats) {
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, statsKey, raw, c.ttl).Err(); err != nil {
		logging.FromContext(ctx).Warn("stats cache write failed", "error", err)
	}
}

// Invalidate drops the cached value. Called after every commit.
func (c *StatsCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, statsKey).Err(); err != nil {
		logging.FromContext(ctx).Warn("stats cache invalidate failed", "error", err)
	}
}
