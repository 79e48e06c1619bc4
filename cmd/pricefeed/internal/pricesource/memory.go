package pricesource

import (
	"context"
	"sync"
	"time"
)

// MemoryCache is a process-local price cache. Resolution runs on multiple
// goroutines concurrently, so the map is mutex-guarded.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]CachedPrice
}

var _ Cache = (*MemoryCache)(nil)

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]CachedPrice)}
}

func (c *MemoryCache) Get(ctx context.Context, symbol string) (CachedPrice, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[symbol]
	return entry, ok, nil
}

func (c *MemoryCache) Set(ctx context.Context, symbol string, price float64, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[symbol] = CachedPrice{Symbol: symbol, Price: price, CachedAt: at}
	return nil
}
