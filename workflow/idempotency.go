package workflow

import (
	"errors"
	"strings"

	"github.com/earnflowhq/earnflow_backend/models"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// SQLite (tests) does not map to a typed error.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// RecordCommission creates an accrual entry, deduplicating on the input's
// idempotency key. A replayed key returns the originally created entry and
// created=false; the ledger gains no second row.
func RecordCommission(db *gorm.DB, input *models.NewCommissionEntry) (entry *models.CommissionEntry, created bool, err error) {
	entry, err = models.CreateCommissionEntry(db, input)
	if err == nil {
		return entry, true, nil
	}
	if input.IdempotencyKey == "" || !isDuplicateKeyErr(err) {
		return nil, false, err
	}
	existing, lookupErr := models.FindEntryByIdempotencyKey(db, input.IdempotencyKey)
	if lookupErr != nil {
		return nil, false, err
	}
	return existing, false, nil
}
