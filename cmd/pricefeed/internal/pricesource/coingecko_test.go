package pricesource_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricewatch/crypto-notify/cmd/pricefeed/internal/pricesource"
)

func TestCoinGeckoClient_FetchPrice(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "bitcoin", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		w.Write([]byte(`{"bitcoin":{"usd":50000.25}}`))
	}))
	defer server.Close()

	client := pricesource.NewCoinGeckoClient(server.URL, time.Second)
	price, err := client.FetchPrice(context.Background(), "BTC")

	require.NoError(t, err)
	assert.Equal(t, 50000.25, price)
}

func TestCoinGeckoClient_RateLimitCarriesRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := pricesource.NewCoinGeckoClient(server.URL, time.Second)
	_, err := client.FetchPrice(context.Background(), "BTC")

	var rl *pricesource.RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, 7*time.Second, rl.RetryAfter)
}

func TestCoinGeckoClient_ServerErrorIsPlainError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := pricesource.NewCoinGeckoClient(server.URL, time.Second)
	_, err := client.FetchPrice(context.Background(), "BTC")

	require.Error(t, err)
	var rl *pricesource.RateLimitError
	assert.False(t, errors.As(err, &rl))
}

func TestCoinGeckoClient_MissingSymbolInResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := pricesource.NewCoinGeckoClient(server.URL, time.Second)
	_, err := client.FetchPrice(context.Background(), "BTC")
	assert.Error(t, err)
}

func TestCanonicalID(t *testing.T) {
	assert.Equal(t, "bitcoin", pricesource.CanonicalID("BTC"))
	assert.Equal(t, "bitcoin", pricesource.CanonicalID("btc"))
	assert.Equal(t, "matic-network", pricesource.CanonicalID("MATIC"))
	// Unmapped tickers pass through lower-cased
	assert.Equal(t, "newcoin", pricesource.CanonicalID("NEWCOIN"))
}
