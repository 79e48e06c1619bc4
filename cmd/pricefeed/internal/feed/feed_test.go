package feed_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pricewatch/crypto-notify/cmd/pricefeed/internal/feed"
	"github.com/pricewatch/crypto-notify/pkg/models"
)

type fakeResolver struct {
	mu     sync.Mutex
	prices map[string]float64
	err    error
}

func (r *fakeResolver) Resolve(ctx context.Context, symbol string) (models.PriceQuote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return models.PriceQuote{}, r.err
	}
	return models.PriceQuote{Symbol: symbol, Price: r.prices[symbol], ObservedAt: time.Now()}, nil
}

func (r *fakeResolver) setPrice(symbol string, price float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prices[symbol] = price
}

type notification struct {
	symbol   string
	oldPrice float64
	newPrice float64
	userID   int64
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notification
}

func (n *fakeNotifier) NotifyPriceChange(ctx context.Context, symbol string, oldPrice, newPrice float64, userID int64) models.ChangeEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notification{symbol, oldPrice, newPrice, userID})
	return models.NewChangeEvent(symbol, oldPrice, newPrice, userID, time.Now(), 5)
}

func (n *fakeNotifier) notifications() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.calls...)
}

func newWatcher(holdings feed.Holdings, resolver *fakeResolver, notifier *fakeNotifier) *feed.Watcher {
	return feed.NewWatcher(holdings, resolver, notifier, time.Second, clockwork.NewFakeClock(), zap.NewNop())
}

func TestWatcher_FirstObservationOnlyPrimes(t *testing.T) {
	resolver := &fakeResolver{prices: map[string]float64{"BTC": 50000}}
	notifier := &fakeNotifier{}
	holdings := feed.StaticHoldings{{UserID: 7, Symbol: "BTC"}}

	w := newWatcher(holdings, resolver, notifier)
	w.Poll(context.Background())

	assert.Empty(t, notifier.notifications())
}

func TestWatcher_NotifiesOwnerOnTransition(t *testing.T) {
	resolver := &fakeResolver{prices: map[string]float64{"BTC": 50000}}
	notifier := &fakeNotifier{}
	holdings := feed.StaticHoldings{{UserID: 7, Symbol: "BTC"}}

	w := newWatcher(holdings, resolver, notifier)
	w.Poll(context.Background())

	resolver.setPrice("BTC", 52000)
	w.Poll(context.Background())

	calls := notifier.notifications()
	require.Len(t, calls, 1)
	assert.Equal(t, notification{symbol: "BTC", oldPrice: 50000, newPrice: 52000, userID: 7}, calls[0])
}

func TestWatcher_UnchangedPriceIsQuiet(t *testing.T) {
	resolver := &fakeResolver{prices: map[string]float64{"BTC": 50000}}
	notifier := &fakeNotifier{}
	holdings := feed.StaticHoldings{{UserID: 7, Symbol: "BTC"}}

	w := newWatcher(holdings, resolver, notifier)
	w.Poll(context.Background())
	w.Poll(context.Background())

	assert.Empty(t, notifier.notifications())
}

func TestWatcher_SharedSymbolNotifiesEveryOwner(t *testing.T) {
	resolver := &fakeResolver{prices: map[string]float64{"ETH": 3000}}
	notifier := &fakeNotifier{}
	holdings := feed.StaticHoldings{
		{UserID: 1, Symbol: "ETH"},
		{UserID: 2, Symbol: "ETH"},
	}

	w := newWatcher(holdings, resolver, notifier)
	w.Poll(context.Background())

	resolver.setPrice("ETH", 3300)
	w.Poll(context.Background())

	calls := notifier.notifications()
	require.Len(t, calls, 2)
	users := []int64{calls[0].userID, calls[1].userID}
	assert.ElementsMatch(t, []int64{1, 2}, users)
}

func TestWatcher_ResolveFailureSkipsCycle(t *testing.T) {
	resolver := &fakeResolver{prices: map[string]float64{}, err: errors.New("unavailable")}
	notifier := &fakeNotifier{}
	holdings := feed.StaticHoldings{{UserID: 7, Symbol: "BTC"}}

	w := newWatcher(holdings, resolver, notifier)
	w.Poll(context.Background())

	assert.Empty(t, notifier.notifications())
}

func TestParsePositions(t *testing.T) {
	positions, err := feed.ParsePositions([]string{"1:BTC", "2:eth"})
	require.NoError(t, err)
	assert.Equal(t, []feed.Position{
		{UserID: 1, Symbol: "BTC"},
		{UserID: 2, Symbol: "ETH"},
	}, positions)

	_, err = feed.ParsePositions([]string{"nope"})
	assert.Error(t, err)

	_, err = feed.ParsePositions([]string{"x:BTC"})
	assert.Error(t, err)
}
