package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/earnflowhq/earnflow_backend/config"
	"github.com/shopspring/decimal"
)

// ErrRateUnavailable means the price source could not be reached or did not
// return a usable rate. The payout workflow treats this as a hard stop unless
// the stale-rate fallback is explicitly enabled.
var ErrRateUnavailable = errors.New("spot price source unavailable")

// Rate is a spot price captured at a point in time. Stale is true only when
// the rate was served from the Redis cache instead of the live source.
type Rate struct {
	Rate  decimal.Decimal `json:"rate"`
	AsOf  time.Time       `json:"as_of"`
	Stale bool            `json:"stale"`
}

// PriceSource supplies spot prices for a currency pair like "BTC-USD".
type PriceSource interface {
	SpotPrice(ctx context.Context, base string, quote string) (*Rate, error)
}

// Client fetches spot prices from a CoinGecko-style simple-price endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cacheTTL   time.Duration
}

func NewClient() *Client {
	baseURL := strings.TrimSpace(os.Getenv("PRICE_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}
	timeout := 10 * time.Second
	if v := strings.TrimSpace(os.Getenv("PRICE_API_TIMEOUT_SECONDS")); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil && d > 0 {
			timeout = d
		}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		cacheTTL:   15 * time.Minute,
	}
}

var coinIDs = map[string]string{
	"BTC": "bitcoin",
	"ETH": "ethereum",
}

func cacheKey(base, quote string) string {
	return fmt.Sprintf("spotrate:%s-%s", base, quote)
}

// SpotPrice fetches the live rate for base/quote. A successful fetch is
// cached so CachedSpotPrice can serve a flagged stale rate later.
func (c *Client) SpotPrice(ctx context.Context, base string, quote string) (*Rate, error) {
	coinID, ok := coinIDs[strings.ToUpper(base)]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported currency %q", ErrRateUnavailable, base)
	}
	vs := strings.ToLower(quote)

	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=%s", c.baseURL, coinID, vs)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: price source returned %d", ErrRateUnavailable, resp.StatusCode)
	}

	// {"bitcoin":{"usd":64234.12}}
	var body map[string]map[string]json.Number
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateUnavailable, err)
	}
	raw, ok := body[coinID][vs]
	if !ok {
		return nil, fmt.Errorf("%w: pair %s-%s missing from response", ErrRateUnavailable, base, quote)
	}
	rate, err := decimal.NewFromString(raw.String())
	if err != nil || rate.IsZero() {
		return nil, fmt.Errorf("%w: unusable rate %q", ErrRateUnavailable, raw.String())
	}

	result := &Rate{Rate: rate, AsOf: time.Now().UTC()}
	// Cache failures are not fatal; the cache only feeds the stale fallback.
	_ = config.SetRedisObject(cacheKey(strings.ToUpper(base), strings.ToUpper(quote)), result, c.cacheTTL)
	return result, nil
}

// CachedSpotPrice returns the most recent cached rate, marked stale.
// Returns (nil, false) when nothing usable is cached.
func CachedSpotPrice(base string, quote string) (*Rate, bool) {
	var cached Rate
	found, err := config.GetRedisObject(cacheKey(strings.ToUpper(base), strings.ToUpper(quote)), &cached)
	if err != nil || !found || cached.Rate.IsZero() {
		return nil, false
	}
	cached.Stale = true
	return &cached, true
}
