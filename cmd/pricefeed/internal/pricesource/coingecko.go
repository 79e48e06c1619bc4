package pricesource

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// coingeckoIDs maps short tickers to CoinGecko canonical identifiers.
// Unmapped tickers pass through lower-cased; they may resolve to the wrong
// upstream entity, which is an accepted approximation.
var coingeckoIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"USDT":  "tether",
	"BNB":   "binancecoin",
	"SOL":   "solana",
	"ADA":   "cardano",
	"XRP":   "ripple",
	"DOGE":  "dogecoin",
	"DOT":   "polkadot",
	"MATIC": "matic-network",
	"PEPE":  "pepe",
}

// CoinGeckoClient fetches spot prices from the CoinGecko simple price API
type CoinGeckoClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ Fetcher = (*CoinGeckoClient)(nil)

func NewCoinGeckoClient(baseURL string, timeout time.Duration) *CoinGeckoClient {
	return &CoinGeckoClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *CoinGeckoClient) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	id := CanonicalID(symbol)

	u, err := url.Parse(c.baseURL + "/simple/price")
	if err != nil {
		return 0, fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("ids", id)
	q.Set("vs_currencies", "usd")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch price for %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return 0, &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, symbol)
	}

	// Response shape: {"bitcoin": {"usd": 50000.12}}
	var body map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode response for %s: %w", symbol, err)
	}

	price, ok := body[id]["usd"]
	if !ok {
		return 0, fmt.Errorf("no usd price for %s (id %s)", symbol, id)
	}
	return price, nil
}

// CanonicalID translates a ticker to the provider's identifier
func CanonicalID(symbol string) string {
	if id, ok := coingeckoIDs[strings.ToUpper(symbol)]; ok {
		return id
	}
	return strings.ToLower(symbol)
}

func parseRetryAfter(header string) time.Duration {
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
