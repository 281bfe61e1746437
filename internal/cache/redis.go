package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/ads-correlator/internal/logger"
)

// redisNamespace prefixes every cache key so Clear never touches keys owned
// by other services sharing the instance.
const redisNamespace = "ads-correlator:cache:"

// Redis is a Store backed by a shared Redis instance. Useful when several
// replicas should share one response cache.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	log    logger.Logger
}

// NewRedis creates a Redis-backed store with the given TTL.
func NewRedis(client *redis.Client, ttl time.Duration, log logger.Logger) *Redis {
	if log == nil {
		log = logger.NewNop()
	}
	return &Redis{
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

// Get returns the cached payload for key. Redis errors degrade to a miss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := r.client.Get(ctx, redisNamespace+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("cache read failed",
				logger.String("key", key),
				logger.Error(err))
		}
		return nil, false
	}
	return val, true
}

// Set stores the payload under key for the store's TTL. Failures are logged,
// not surfaced: the worst case is a cache miss on the next call.
func (r *Redis) Set(ctx context.Context, key string, value []byte) {
	if err := r.client.Set(ctx, redisNamespace+key, value, r.ttl).Err(); err != nil {
		r.log.Warn("cache write failed",
			logger.String("key", key),
			logger.Error(err))
	}
}

// Clear removes every key in this store's namespace.
func (r *Redis) Clear(ctx context.Context) {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, redisNamespace+"*", 100).Result()
		if err != nil {
			r.log.Warn("cache clear scan failed", logger.Error(err))
			return
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				r.log.Warn("cache clear delete failed", logger.Error(err))
				return
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}
