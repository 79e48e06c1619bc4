// Package feed drives the producer side: it polls current holdings,
// resolves a fresh price per symbol, and announces transitions through the
// notifier. Persistence of the holdings themselves lives elsewhere.
package feed

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/pricewatch/crypto-notify/pkg/models"
)

// Position ties a holding's owner to a symbol
type Position struct {
	UserID int64
	Symbol string
}

// Holdings reads the current set of tracked positions
type Holdings interface {
	Positions(ctx context.Context) ([]Position, error)
}

// StaticHoldings serves a fixed position list (local runs, tests)
type StaticHoldings []Position

func (s StaticHoldings) Positions(ctx context.Context) ([]Position, error) {
	return s, nil
}

// ParsePositions parses "userID:SYMBOL" pairs from config.
func ParsePositions(raw []string) ([]Position, error) {
	var out []Position
	for _, entry := range raw {
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid position %q, want userID:SYMBOL", entry)
		}
		userID, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id in position %q: %w", entry, err)
		}
		symbol := strings.ToUpper(strings.TrimSpace(parts[1]))
		if symbol == "" {
			return nil, fmt.Errorf("empty symbol in position %q", entry)
		}
		out = append(out, Position{UserID: userID, Symbol: symbol})
	}
	return out, nil
}

// PriceResolver abstracts the price source
type PriceResolver interface {
	Resolve(ctx context.Context, symbol string) (models.PriceQuote, error)
}

// Notifier abstracts the producer-side broker API
type Notifier interface {
	NotifyPriceChange(ctx context.Context, symbol string, oldPrice, newPrice float64, userID int64) models.ChangeEvent
}

// Watcher polls holdings on an interval and publishes price transitions.
type Watcher struct {
	holdings Holdings
	resolver PriceResolver
	notifier Notifier
	interval time.Duration
	clock    clockwork.Clock
	logger   *zap.Logger

	mu         sync.Mutex
	lastPrices map[string]float64
}

func NewWatcher(holdings Holdings, resolver PriceResolver, notifier Notifier, interval time.Duration, clock clockwork.Clock, logger *zap.Logger) *Watcher {
	return &Watcher{
		holdings:   holdings,
		resolver:   resolver,
		notifier:   notifier,
		interval:   interval,
		clock:      clock,
		logger:     logger,
		lastPrices: make(map[string]float64),
	}
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	w.logger.Info("Feed watcher started", zap.Duration("interval", w.interval))
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Feed watcher stopped")
			return
		case <-ticker.Chan():
			w.Poll(ctx)
		}
	}
}

// Poll resolves every distinct symbol once, concurrently, then notifies each
// owner of a symbol whose price moved since the previous observation. The
// first observation of a symbol only primes the baseline.
func (w *Watcher) Poll(ctx context.Context) {
	positions, err := w.holdings.Positions(ctx)
	if err != nil {
		w.logger.Error("Failed to read holdings", zap.Error(err))
		return
	}

	owners := make(map[string][]int64)
	for _, p := range positions {
		owners[p.Symbol] = append(owners[p.Symbol], p.UserID)
	}

	type observation struct {
		symbol string
		price  float64
	}

	results := make(chan observation, len(owners))
	var wg sync.WaitGroup
	for symbol := range owners {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			quote, err := w.resolver.Resolve(ctx, sym)
			if err != nil {
				w.logger.Warn("Skipping symbol this cycle", zap.String("symbol", sym), zap.Error(err))
				return
			}
			results <- observation{symbol: sym, price: quote.Price}
		}(symbol)
	}
	wg.Wait()
	close(results)

	for obs := range results {
		w.mu.Lock()
		old, seen := w.lastPrices[obs.symbol]
		w.lastPrices[obs.symbol] = obs.price
		w.mu.Unlock()

		if !seen || old == obs.price {
			continue
		}
		for _, userID := range owners[obs.symbol] {
			w.notifier.NotifyPriceChange(ctx, obs.symbol, old, obs.price, userID)
		}
	}
}
