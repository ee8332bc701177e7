package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/earnflowhq/earnflow_backend/models"
	"github.com/earnflowhq/earnflow_backend/pricing"
	"github.com/earnflowhq/earnflow_backend/utils"
	"github.com/shopspring/decimal"
)

// Conversion is the result of pricing a USD-cents ledger total into the
// payout currency. RateUsed and RateTimestamp are persisted on the batch so
// every payout records exactly which rate it settled at.
type Conversion struct {
	TargetAmount  decimal.Decimal
	RateUsed      decimal.Decimal
	RateTimestamp time.Time
	Stale         bool
}

type Converter struct {
	Prices pricing.PriceSource
	// AllowStaleRate permits falling back to the last cached rate when the
	// live source is down. The resulting conversion is flagged Stale and the
	// flag is persisted on the batch.
	AllowStaleRate bool
}

// Convert prices amountCents (USD) into targetCurrency. USD payouts use an
// identity rate of 1 and never touch the price source.
func (c *Converter) Convert(ctx context.Context, amountCents int64, targetCurrency string) (*Conversion, error) {
	usd := utils.CentsToDecimal(amountCents)

	if targetCurrency == models.CurrencyUSD {
		return &Conversion{
			TargetAmount:  usd,
			RateUsed:      decimal.NewFromInt(1),
			RateTimestamp: time.Now().UTC(),
		}, nil
	}

	if c.Prices == nil {
		return nil, fmt.Errorf("%w: no price source configured", pricing.ErrRateUnavailable)
	}

	rate, err := c.Prices.SpotPrice(ctx, targetCurrency, models.CurrencyUSD)
	if err != nil {
		if !c.AllowStaleRate {
			return nil, err
		}
		cached, ok := pricing.CachedSpotPrice(targetCurrency, models.CurrencyUSD)
		if !ok {
			return nil, err
		}
		rate = cached
	}
	if rate.Rate.IsZero() {
		return nil, fmt.Errorf("%w: zero rate for %s-%s", pricing.ErrRateUnavailable, targetCurrency, models.CurrencyUSD)
	}

	// rate is quoted as USD per unit of targetCurrency.
	return &Conversion{
		TargetAmount:  usd.DivRound(rate.Rate, 8),
		RateUsed:      rate.Rate,
		RateTimestamp: rate.AsOf,
		Stale:         rate.Stale,
	}, nil
}
