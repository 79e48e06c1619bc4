package pricesource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "price:"
	// InvalidationChannel carries a broadcast on every cache write so other
	// readers can drop their local copies.
	InvalidationChannel = "price-updates"

	// Entries expire by TTL comparison on read, not by Redis eviction. The
	// Redis expiry only bounds memory and must outlive any staleness window
	// we are willing to serve as a last-resort fallback.
	retention = 24 * time.Hour
)

// RedisCache stores price entries in Redis so multiple resolver processes
// share one cache. Freshness is decided by the CachedAt timestamp in the
// value, letting entries that are stale by policy survive as fallbacks.
type RedisCache struct {
	client *redis.Client
}

var _ Cache = (*RedisCache)(nil)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, symbol string) (CachedPrice, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+symbol).Result()
	if errors.Is(err, redis.Nil) {
		return CachedPrice{}, false, nil
	}
	if err != nil {
		return CachedPrice{}, false, fmt.Errorf("redis get %s: %w", symbol, err)
	}

	var entry CachedPrice
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return CachedPrice{}, false, fmt.Errorf("decode cached price for %s: %w", symbol, err)
	}
	return entry, true, nil
}

func (c *RedisCache) Set(ctx context.Context, symbol string, price float64, at time.Time) error {
	entry := CachedPrice{Symbol: symbol, Price: price, CachedAt: at}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cached price for %s: %w", symbol, err)
	}

	// SET and the invalidation broadcast travel in one pipeline
	pipe := c.client.Pipeline()
	pipe.Set(ctx, keyPrefix+symbol, raw, retention)
	pipe.Publish(ctx, InvalidationChannel, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set %s: %w", symbol, err)
	}
	return nil
}
