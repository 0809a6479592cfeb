package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wojciechbednarz/habit-tracker/internal/domain/types"
	"github.com/wojciechbednarz/habit-tracker/pkg/metrics"
)

// defaultKeyPrefix namespaces dashboard keys in a shared Redis.
const defaultKeyPrefix = "habit:dashboard:"

// Redis is the Cache used when the pipeline runs behind more than one
// process. Values are JSON dashboards with a server-side TTL.
type Redis struct {
	client    redis.UniversalClient
	ttl       time.Duration
	keyPrefix string
}

// RedisOption applies a configuration option to the Redis cache.
type RedisOption func(*Redis)

// WithRedisTTL sets the entry time-to-live.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithKeyPrefix sets the key namespace.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix != "" {
			r.keyPrefix = prefix
		}
	}
}

// NewRedis creates a Redis-backed cache over an existing client.
func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{
		client:    client,
		ttl:       defaultTTL,
		keyPrefix: defaultKeyPrefix,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *Redis) key(userID string) string { return r.keyPrefix + userID }

// Get implements Cache. Transport errors surface to the caller, which falls
// back to the store; a broken cache never breaks dashboard reads.
func (r *Redis) Get(ctx context.Context, userID string) (types.Dashboard, bool, error) {
	data, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.RecordCacheMiss()
		return types.Dashboard{}, false, nil
	}
	if err != nil {
		metrics.RecordCacheMiss()
		metrics.RecordErrorByComponent("cache", "redis_get")
		return types.Dashboard{}, false, fmt.Errorf("cache get %s: %w", userID, err)
	}

	var dashboard types.Dashboard
	if err := json.Unmarshal(data, &dashboard); err != nil {
		// A corrupt entry is dropped and treated as a miss.
		metrics.RecordCacheMiss()
		metrics.RecordErrorByComponent("cache", "corrupt_entry")
		_ = r.client.Del(ctx, r.key(userID)).Err()
		return types.Dashboard{}, false, nil
	}

	metrics.RecordCacheHit()
	return dashboard, true, nil
}

// Set implements Cache.
func (r *Redis) Set(ctx context.Context, userID string, dashboard types.Dashboard) error {
	data, err := json.Marshal(dashboard)
	if err != nil {
		return fmt.Errorf("cache set %s: %w", userID, err)
	}
	if err := r.client.Set(ctx, r.key(userID), data, r.ttl).Err(); err != nil {
		metrics.RecordErrorByComponent("cache", "redis_set")
		return fmt.Errorf("cache set %s: %w", userID, err)
	}
	return nil
}

// Invalidate implements Cache.
func (r *Redis) Invalidate(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		metrics.RecordErrorByComponent("cache", "redis_del")
		return fmt.Errorf("cache invalidate %s: %w", userID, err)
	}
	metrics.RecordCacheInvalidation()
	return nil
}
