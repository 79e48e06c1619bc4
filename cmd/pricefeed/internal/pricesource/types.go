package pricesource

import (
	"context"
	"fmt"
	"time"
)

// CachedPrice is a cache entry. Expiry is decided by comparing CachedAt
// against the TTL on read; there is no background sweep.
type CachedPrice struct {
	Symbol   string    `json:"symbol"`
	Price    float64   `json:"price"`
	CachedAt time.Time `json:"cachedAt"`
}

// Cache abstracts the price cache. The in-memory implementation guards a map
// with a mutex; the Redis implementation relies on the store's own atomicity.
type Cache interface {
	Get(ctx context.Context, symbol string) (CachedPrice, bool, error)
	Set(ctx context.Context, symbol string, price float64, at time.Time) error
}

// Fetcher abstracts the upstream price provider
type Fetcher interface {
	FetchPrice(ctx context.Context, symbol string) (float64, error)
}

// PriceUnavailableError is the only failure callers of Resolve see: the retry
// budget is exhausted and there is no cache entry to fall back on.
type PriceUnavailableError struct {
	Symbol string
}

func (e *PriceUnavailableError) Error() string {
	return fmt.Sprintf("price unavailable for %s", e.Symbol)
}

// RateLimitError signals that the upstream throttled us. When RetryAfter is
// set it overrides the computed backoff for that attempt.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}
