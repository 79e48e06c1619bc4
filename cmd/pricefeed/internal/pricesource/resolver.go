// Package pricesource resolves symbols to current prices, caching results
// and retrying the upstream provider with bounded exponential backoff.
package pricesource

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/pricewatch/crypto-notify/pkg/metrics"
	"github.com/pricewatch/crypto-notify/pkg/models"
	"github.com/pricewatch/crypto-notify/pkg/retry"
)

type Resolver struct {
	cache   Cache
	fetcher Fetcher
	ttl     time.Duration
	policy  retry.Policy
	clock   clockwork.Clock
	logger  *zap.Logger
}

func NewResolver(cache Cache, fetcher Fetcher, ttl time.Duration, policy retry.Policy, clock clockwork.Clock, logger *zap.Logger) *Resolver {
	return &Resolver{
		cache:   cache,
		fetcher: fetcher,
		ttl:     ttl,
		policy:  policy,
		clock:   clock,
		logger:  logger,
	}
}

// Resolve returns a current price for symbol. Within the TTL the cache is
// authoritative and no fetch happens. Past it, the upstream is retried with
// backoff; on a rate-limit response the upstream's retry-after duration
// replaces the computed delay. If the budget runs out, an expired cache
// entry is served as a stale fallback: availability beats freshness. Only
// when there is no entry at all does the caller see PriceUnavailableError.
//
// Two concurrent resolutions of the same cold symbol may both fetch; that is
// tolerated (no single-flight), an efficiency gap rather than a correctness
// one.
func (r *Resolver) Resolve(ctx context.Context, symbol string) (models.PriceQuote, error) {
	entry, cached, err := r.cache.Get(ctx, symbol)
	if err != nil {
		// A broken cache never blocks resolution
		r.logger.Warn("Cache lookup failed", zap.String("symbol", symbol), zap.Error(err))
		cached = false
	}

	if cached && r.clock.Now().Sub(entry.CachedAt) < r.ttl {
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
		return models.PriceQuote{Symbol: symbol, Price: entry.Price, ObservedAt: entry.CachedAt}, nil
	}
	metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()

	price, err := retry.Do(ctx, r.policy, classifyFetch, func() (float64, error) {
		start := time.Now()
		p, ferr := r.fetcher.FetchPrice(ctx, symbol)
		metrics.FetchDuration.Observe(time.Since(start).Seconds())

		switch {
		case ferr == nil:
			metrics.FetchAttemptsTotal.WithLabelValues("ok").Inc()
		case isRateLimit(ferr):
			metrics.FetchAttemptsTotal.WithLabelValues("rate_limited").Inc()
		default:
			metrics.FetchAttemptsTotal.WithLabelValues("error").Inc()
		}
		return p, ferr
	})

	if err == nil {
		now := r.clock.Now()
		// Overwrite unconditionally, stale entry or not
		if serr := r.cache.Set(ctx, symbol, price, now); serr != nil {
			r.logger.Warn("Failed to update cache", zap.String("symbol", symbol), zap.Error(serr))
		}
		return models.PriceQuote{Symbol: symbol, Price: price, ObservedAt: now}, nil
	}

	if cached {
		metrics.CacheLookupsTotal.WithLabelValues("stale_fallback").Inc()
		r.logger.Warn("Serving expired cache entry after fetch failures",
			zap.String("symbol", symbol),
			zap.Time("cached_at", entry.CachedAt),
			zap.Error(err))
		return models.PriceQuote{Symbol: symbol, Price: entry.Price, ObservedAt: entry.CachedAt}, nil
	}

	r.logger.Error("Price unavailable", zap.String("symbol", symbol), zap.Error(err))
	return models.PriceQuote{}, &PriceUnavailableError{Symbol: symbol}
}

func classifyFetch(err error) (retry.Action, time.Duration) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return retry.After, rl.RetryAfter
	}
	return retry.Retry, 0
}

func isRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}
