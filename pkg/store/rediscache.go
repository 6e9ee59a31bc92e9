package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stratowall/mailtriage/pkg/triage"
)

// AnalyticsCache caches the fast analytics payload in Redis with a short
// TTL. Misses and Redis outages fall through to recomputation: the cache is
// an accelerator, never a source of truth.
type AnalyticsCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewAnalyticsCache connects a cache to the given Redis address.
func NewAnalyticsCache(addr string, ttl time.Duration, log *zap.Logger) *AnalyticsCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &AnalyticsCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
		log:    log.Named("analytics-cache"),
	}
}

// NewAnalyticsCacheWithClient wraps an existing client. Used by tests.
func NewAnalyticsCacheWithClient(client *redis.Client, ttl time.Duration, log *zap.Logger) *AnalyticsCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &AnalyticsCache{client: client, ttl: ttl, log: log.Named("analytics-cache")}
}

func analyticsKey(sessionID string) string {
	return "mailtriage:fast-analytics:" + sessionID
}

// Get returns the cached payload for a session, or (nil, false) on a miss.
// Redis failures count as misses and are logged, not returned.
func (c *AnalyticsCache) Get(ctx context.Context, sessionID string) (*triage.FastAnalytics, bool) {
	payload, err := c.client.Get(ctx, analyticsKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.log.Warn("cache read failed", zap.Error(err))
		return nil, false
	}

	var fa triage.FastAnalytics
	if err := json.Unmarshal(payload, &fa); err != nil {
		c.log.Warn("cache payload corrupt, dropping", zap.Error(err))
		_ = c.client.Del(ctx, analyticsKey(sessionID)).Err()
		return nil, false
	}
	return &fa, true
}

// Set stores the payload under the session key with the configured TTL.
func (c *AnalyticsCache) Set(ctx context.Context, sessionID string, fa *triage.FastAnalytics) error {
	payload, err := json.Marshal(fa)
	if err != nil {
		return fmt.Errorf("marshal analytics: %w", err)
	}
	if err := c.client.Set(ctx, analyticsKey(sessionID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

// Invalidate drops the session's cached payload, called after learning runs
// so the next dashboard read reflects the new state.
func (c *AnalyticsCache) Invalidate(ctx context.Context, sessionID string) {
	if err := c.client.Del(ctx, analyticsKey(sessionID)).Err(); err != nil {
		c.log.Warn("cache invalidation failed", zap.Error(err))
	}
}

// Close releases the Redis connection.
func (c *AnalyticsCache) Close() error {
	return c.client.Close()
}
