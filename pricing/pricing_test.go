package pricing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("PRICE_API_BASE_URL", srv.URL)
	return NewClient()
}

func TestSpotPrice_ParsesSimplePriceResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/simple/price", r.URL.Path)
		require.Equal(t, "bitcoin", r.URL.Query().Get("ids"))
		require.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"bitcoin":{"usd":64234.12}}`))
	})

	rate, err := c.SpotPrice(context.Background(), "BTC", "USD")
	require.NoError(t, err)
	require.True(t, rate.Rate.Equal(decimal.RequireFromString("64234.12")))
	require.False(t, rate.Stale)
	require.False(t, rate.AsOf.IsZero())
}

func TestSpotPrice_UnsupportedCurrency(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := c.SpotPrice(context.Background(), "DOGE", "USD")
	require.ErrorIs(t, err, ErrRateUnavailable)
}

func TestSpotPrice_SourceDown(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.SpotPrice(context.Background(), "BTC", "USD")
	require.ErrorIs(t, err, ErrRateUnavailable)
}

func TestSpotPrice_MissingPair(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bitcoin":{}}`))
	})

	_, err := c.SpotPrice(context.Background(), "BTC", "USD")
	require.ErrorIs(t, err, ErrRateUnavailable)
}

func TestSpotPrice_ZeroRateRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ethereum":{"usd":0}}`))
	})

	_, err := c.SpotPrice(context.Background(), "ETH", "USD")
	require.ErrorIs(t, err, ErrRateUnavailable)
}

func TestCachedSpotPrice_EmptyCache(t *testing.T) {
	// No Redis in unit tests; the cache lookup must degrade to a miss.
	rate, ok := CachedSpotPrice("BTC", "USD")
	require.False(t, ok)
	require.Nil(t, rate)
}
