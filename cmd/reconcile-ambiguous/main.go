// reconcile-ambiguous resolves payout batches flagged for reconciliation by
// asking the gateway for the definitive transfer outcome. Safe to run
// repeatedly; batches with no definitive answer stay flagged.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//   PAYOUT_GATEWAY_BASE_URL=... go run ./cmd/reconcile-ambiguous
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/earnflowhq/earnflow_backend/config"
	"github.com/earnflowhq/earnflow_backend/gateway"
	"github.com/earnflowhq/earnflow_backend/workflow"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	summary, err := workflow.ResolveFlaggedBatches(ctx, db, config.GetLogger(), gateway.NewHTTPGateway())
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconciliation sweep failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("reconcile-ambiguous: checked=%d succeeded=%d failed=%d unknown=%d errors=%d\n",
		summary.Checked, summary.Succeeded, summary.Failed, summary.Unknown, summary.Errors)
	if summary.Errors > 0 {
		os.Exit(2)
	}
}
