// payout-run sweeps every user with an unpaid balance and attempts a payout
// for each. Intended to run as a scheduled job (Cloud Scheduler / cron).
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//   REDIS_ADDRESS=... PAYOUT_GATEWAY_BASE_URL=... go run ./cmd/payout-run
//
// Flags:
//   -currency  payout currency for the sweep (default USD)
//   -dry-run   list users and unpaid totals without paying anything
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/earnflowhq/earnflow_backend/config"
	"github.com/earnflowhq/earnflow_backend/gateway"
	"github.com/earnflowhq/earnflow_backend/models"
	"github.com/earnflowhq/earnflow_backend/pricing"
	"github.com/earnflowhq/earnflow_backend/workflow"
)

func main() {
	currency := flag.String("currency", models.CurrencyUSD, "payout currency for the sweep")
	dryRun := flag.Bool("dry-run", false, "list users and unpaid totals without paying")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	logger := config.GetLogger()

	cfg := workflow.DefaultPayoutConfig()
	cfg.AllowStaleRate = config.AllowStaleRateFallback()
	if v := strings.TrimSpace(os.Getenv("MINIMUM_PAYOUT_CENTS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			cfg.MinimumPayoutCents = n
		}
	}

	userIds, err := models.UsersWithUnpaidBalance(db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list users with unpaid balance: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("payout-run: %d user(s) with unpaid balance (currency=%s)\n", len(userIds), *currency)

	if *dryRun {
		for _, userId := range userIds {
			summary, err := models.GetUnpaidSummary(db, userId)
			if err != nil {
				fmt.Fprintf(os.Stderr, "  %s: summary failed: %v\n", userId, err)
				continue
			}
			fmt.Printf("  %s: %d cents across %d entries\n", userId, summary.TotalUnpaidCents, summary.Count)
		}
		return
	}

	// Sweep payouts go to each user's default bank destination; users without
	// one are skipped and must request payout themselves.
	destination := strings.TrimSpace(os.Getenv("SWEEP_DESTINATION_TEMPLATE"))
	if destination == "" {
		destination = "acct:%s"
	}

	orchestrator := workflow.NewPayoutOrchestrator(
		db,
		logger,
		gateway.NewHTTPGateway(),
		&workflow.Converter{Prices: pricing.NewClient(), AllowStaleRate: cfg.AllowStaleRate},
		cfg,
	)

	var paid, skipped, failed int
	for _, userId := range userIds {
		batch, err := orchestrator.RequestPayout(ctx, workflow.PayoutRequest{
			UserId:             userId,
			Currency:           *currency,
			DestinationKind:    models.PayoutDestinationBank,
			DestinationAddress: fmt.Sprintf(destination, userId),
		})
		if err != nil {
			var belowMin *workflow.BelowMinimumError
			switch {
			case errors.As(err, &belowMin):
				skipped++
			case errors.Is(err, workflow.ErrNoUnpaidCommissions), errors.Is(err, workflow.ErrPayoutInProgress):
				skipped++
			default:
				failed++
				fmt.Fprintf(os.Stderr, "  %s: payout failed: %v\n", userId, err)
			}
			continue
		}
		paid++
		fmt.Printf("  %s: batch %s paid %d cents\n", userId, batch.BatchId, batch.TotalCents)
	}

	fmt.Printf("payout-run done at %s: paid=%d skipped=%d failed=%d\n",
		time.Now().UTC().Format(time.RFC3339), paid, skipped, failed)
	if failed > 0 {
		os.Exit(2)
	}
}
