package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aegis/hedge-engine/internal/model"
)

// RedisCache stores results as JSON in Redis with a TTL, so several service
// instances share one set of solved hedges.
type RedisCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

// NewRedisCache creates a Redis-backed cache. Keys are namespaced by prefix.
func NewRedisCache(rdb redis.Cmdable, ttl time.Duration, prefix string) *RedisCache {
	return &RedisCache{
		rdb:    rdb,
		ttl:    ttl,
		prefix: prefix,
	}
}

func (c *RedisCache) Name() string { return "redis" }

func (c *RedisCache) Get(ctx context.Context, key string) (*model.HedgeResult, bool, error) {
	data, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var res model.HedgeResult
	if err := json.Unmarshal(data, &res); err != nil || !res.Action.Valid() {
		// Corrupt entry: treat as a miss; the next Set overwrites it.
		return nil, false, nil
	}
	return &res, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, res *model.HedgeResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}
