// Package cache holds the Redis-backed read cache for advisory availability
// results. It only ever sits in front of non-locking reads; every
// transactional path recomputes availability under row locks and never
// touches Redis.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fossasia/eventyay-sub001/internal/domain"
	"github.com/redis/go-redis/v9"
)

const defaultTTL = 5 * time.Second

type AvailabilityCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewAvailabilityCache wraps a Redis client. A zero ttl uses the default.
func NewAvailabilityCache(client redis.Cmdable, ttl time.Duration) *AvailabilityCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &AvailabilityCache{client: client, ttl: ttl}
}

func key(quotaID string) string {
	return "avail:" + quotaID
}

// GetMany returns the cached availability for each quota that has a fresh
// entry. Misses and Redis errors are simply absent from the result; the
// caller falls through to the database.
func (c *AvailabilityCache) GetMany(ctx context.Context, quotaIDs []string) map[string]domain.Availability {
	if len(quotaIDs) == 0 {
		return nil
	}

	keys := make([]string, len(quotaIDs))
	for i, id := range quotaIDs {
		keys[i] = key(id)
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil
	}

	hits := make(map[string]domain.Availability, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var a domain.Availability
		if err := json.Unmarshal([]byte(s), &a); err != nil {
			continue
		}
		hits[quotaIDs[i]] = a
	}
	return hits
}

// SetMany stores availability results with the cache TTL. Failures are
// ignored: a cold cache only costs one extra database pass.
func (c *AvailabilityCache) SetMany(ctx context.Context, results map[string]domain.Availability) {
	if len(results) == 0 {
		return
	}

	pipe := c.client.Pipeline()
	for quotaID, a := range results {
		payload, err := json.Marshal(a)
		if err != nil {
			continue
		}
		pipe.Set(ctx, key(quotaID), payload, c.ttl)
	}
	_, _ = pipe.Exec(ctx)
}

// Invalidate drops cached entries after a capacity-changing write, so the
// next advisory read reflects it without waiting out the TTL.
func (c *AvailabilityCache) Invalidate(ctx context.Context, quotaIDs []string) {
	if len(quotaIDs) == 0 {
		return
	}
	keys := make([]string, len(quotaIDs))
	for i, id := range quotaIDs {
		keys[i] = key(id)
	}
	_ = c.client.Del(ctx, keys...).Err()
}
