// seed-dev loads a local database with sample commission entries so the API
// and payout flow can be exercised end to end. Never run against production.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-dev
package main

import (
	"fmt"
	"os"

	"github.com/earnflowhq/earnflow_backend/config"
	"github.com/earnflowhq/earnflow_backend/models"
)

type seedEntry struct {
	userId      string
	amountCents int64
	source      models.CommissionSource
	description string
}

func main() {
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	seeds := []seedEntry{
		{"user-alice", 2500, models.CommissionSourceTaskCompletion, "content review batch 14"},
		{"user-alice", 1200, models.CommissionSourceReferralBonus, "referred user-dave"},
		{"user-alice", 430, models.CommissionSourceAdRevenueShare, "july ad share"},
		{"user-bob", 800, models.CommissionSourceAffiliateSale, "storefront sale #8821"},
		{"user-bob", 150, models.CommissionSourceTaskCompletion, "survey completion"},
		{"user-carol", 99000, models.CommissionSourceAffiliateSale, "enterprise referral"},
	}

	var created int
	for _, s := range seeds {
		input := models.NewCommissionEntry{
			UserId:      s.userId,
			AmountCents: s.amountCents,
			Source:      s.source,
			Description: s.description,
		}
		if _, err := models.CreateCommissionEntry(db, &input); err != nil {
			fmt.Fprintf(os.Stderr, "failed to seed entry for %s: %v\n", s.userId, err)
			os.Exit(1)
		}
		created++
	}
	fmt.Printf("seed-dev: created %d commission entries\n", created)
}
