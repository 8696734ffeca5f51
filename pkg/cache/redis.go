// Package cache is a small JSON read-through cache on Redis. A nil *Cache
// is a valid, always-missing cache so callers need no branches when Redis
// is disabled.
//
// Every key carries a generation that Invalidate bumps. A reader takes the
// generation before loading from the source of truth and stores the loaded
// value with SetJSONIfGeneration, which refuses the write when the key was
// invalidated in between.
package cache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/progami/wms-ecomos-sub005/pkg/config"
	"github.com/progami/wms-ecomos-sub005/pkg/logger"
)

// NewRedisClient creates a Redis client and verifies it with PING
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return rdb, nil
}

// Cache stores JSON values under a key prefix with a fixed TTL
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *logger.Logger
}

// New creates a cache on client
func New(client *redis.Client, prefix string, ttl time.Duration, log *logger.Logger) *Cache {
	return &Cache{client: client, prefix: prefix, ttl: ttl, logger: log.WithComponent("cache")}
}

func (c *Cache) key(k string) string {
	return c.prefix + ":" + k
}

func (c *Cache) generationKey(k string) string {
	return c.key(k) + ":gen"
}

// setIfGeneration writes ARGV[2] to KEYS[1] only while KEYS[2] still holds
// ARGV[1]. An absent generation is passed as "".
var setIfGeneration = redis.NewScript(`
local gen = redis.call("GET", KEYS[2]) or ""
if gen ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`)

// GetJSON loads key into v. It reports false on a miss. Redis failures
// are logged and treated as misses.
func (c *Cache) GetJSON(ctx context.Context, key string, v interface{}) bool {
	if c == nil {
		return false
	}

	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache entry is corrupt")
		return false
	}
	return true
}

// Generation returns the current generation of key. It reports false when
// the cache is disabled or Redis fails, in which case nothing should be
// stored for key.
func (c *Cache) Generation(ctx context.Context, key string) (string, bool) {
	if c == nil {
		return "", false
	}

	gen, err := c.client.Get(ctx, c.generationKey(key)).Result()
	if stderrors.Is(err, redis.Nil) {
		return "", true
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache generation read failed")
		return "", false
	}
	return gen, true
}

// SetJSONIfGeneration stores v under key unless key was invalidated since
// gen was read. It reports whether the value was stored.
func (c *Cache) SetJSONIfGeneration(ctx context.Context, key, gen string, v interface{}) bool {
	if c == nil {
		return false
	}

	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache value not serializable")
		return false
	}
	stored, err := setIfGeneration.Run(ctx, c.client,
		[]string{c.key(key), c.generationKey(key)},
		gen, raw, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
		return false
	}
	return stored == 1
}

// Invalidate removes keys and bumps their generations so that loads which
// started earlier cannot store their values. Generations live twice as
// long as entries.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if c == nil || len(keys) == 0 {
		return
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range keys {
			pipe.Incr(ctx, c.generationKey(k))
			if c.ttl > 0 {
				pipe.Expire(ctx, c.generationKey(k), 2*c.ttl)
			}
			pipe.Del(ctx, c.key(k))
		}
		return nil
	})
	if err != nil {
		c.logger.Warn().Err(err).Strs("keys", keys).Msg("cache invalidation failed")
	}
}

// Health returns the health status of Redis
func (c *Cache) Health(ctx context.Context) map[string]string {
	if c == nil {
		return map[string]string{"status": "disabled"}
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		return map[string]string{"status": "down", "error": err.Error()}
	}
	return map[string]string{"status": "up"}
}
