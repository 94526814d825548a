package names

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentsight/agentsight/internal/timeline"
)

const (
	redisKeyPrefix = "agentsight:name:"
	redisOpTimeout = 200 * time.Millisecond
)

// RedisCache wraps another resolver with a shared Redis cache, so multiple
// dashboard replicas resolve each agent id once. Cache outages degrade to
// the inner resolver, never to an error.
type RedisCache struct {
	client *redis.Client
	inner  timeline.NameResolver
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(client *redis.Client, inner timeline.NameResolver, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{client: client, inner: inner, ttl: ttl, logger: logger}
}

// ResolveDisplayName implements timeline.NameResolver.
func (c *RedisCache) ResolveDisplayName(agentID string) (string, bool) {
	if agentID == "" {
		return "", false
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	key := redisKeyPrefix + agentID
	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return cached, true
	case !errors.Is(err, redis.Nil):
		c.logger.Debug("name cache read failed", "agent_id", agentID, "error", err)
	}

	name, ok := c.inner.ResolveDisplayName(agentID)
	if !ok {
		// Misses are not cached: the registry may learn the agent later.
		return "", false
	}

	if err := c.client.Set(ctx, key, name, c.ttl).Err(); err != nil {
		c.logger.Debug("name cache write failed", "agent_id", agentID, "error", err)
	}
	return name, true
}
