package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/earnflowhq/earnflow_backend/models"
	"github.com/earnflowhq/earnflow_backend/pricing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestConvert_USDIsIdentity(t *testing.T) {
	c := &Converter{}
	conv, err := c.Convert(context.Background(), 123456, models.CurrencyUSD)
	require.NoError(t, err)
	require.True(t, conv.TargetAmount.Equal(decimal.RequireFromString("1234.56")))
	require.True(t, conv.RateUsed.Equal(decimal.NewFromInt(1)))
	require.False(t, conv.Stale)
}

func TestConvert_CryptoUsesSpotRate(t *testing.T) {
	asOf := time.Now().UTC()
	c := &Converter{Prices: &fakePrices{rate: &pricing.Rate{
		Rate: decimal.NewFromInt(2500),
		AsOf: asOf,
	}}}

	conv, err := c.Convert(context.Background(), 500000, models.CurrencyETH) // $5000
	require.NoError(t, err)
	require.True(t, conv.TargetAmount.Equal(decimal.NewFromInt(2)))
	require.True(t, conv.RateUsed.Equal(decimal.NewFromInt(2500)))
	require.Equal(t, asOf, conv.RateTimestamp)
}

func TestConvert_RoundsToEightPlaces(t *testing.T) {
	c := &Converter{Prices: &fakePrices{rate: &pricing.Rate{
		Rate: decimal.NewFromInt(3),
		AsOf: time.Now().UTC(),
	}}}

	conv, err := c.Convert(context.Background(), 100, models.CurrencyBTC) // $1 / 3
	require.NoError(t, err)
	require.True(t, conv.TargetAmount.Equal(decimal.RequireFromString("0.33333333")))
}

func TestConvert_RateUnavailableWithoutFallback(t *testing.T) {
	c := &Converter{Prices: &fakePrices{err: pricing.ErrRateUnavailable}}
	_, err := c.Convert(context.Background(), 100, models.CurrencyBTC)
	require.ErrorIs(t, err, pricing.ErrRateUnavailable)
}

func TestConvert_NoPriceSource(t *testing.T) {
	c := &Converter{}
	_, err := c.Convert(context.Background(), 100, models.CurrencyBTC)
	require.ErrorIs(t, err, pricing.ErrRateUnavailable)
}
