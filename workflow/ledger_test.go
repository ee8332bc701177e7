package workflow

import (
	"io"
	"testing"

	"github.com/earnflowhq/earnflow_backend/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	return db
}

func accrue(t *testing.T, db *gorm.DB, userId string, cents int64) *models.CommissionEntry {
	t.Helper()
	entry, err := models.CreateCommissionEntry(db, &models.NewCommissionEntry{
		UserId:      userId,
		AmountCents: cents,
		Source:      models.CommissionSourceTaskCompletion,
		Description: "test accrual",
	})
	require.NoError(t, err)
	return entry
}

func unpaidTotal(t *testing.T, db *gorm.DB, userId string) int64 {
	t.Helper()
	summary, err := models.GetUnpaidSummary(db, userId)
	require.NoError(t, err)
	return summary.TotalUnpaidCents
}

func TestSnapshotUnpaidEntries_FreezesSetAndTotal(t *testing.T) {
	db := setupTestDB(t)

	e1 := accrue(t, db, "user-1", 300)
	e2 := accrue(t, db, "user-1", 700)
	accrue(t, db, "user-2", 5000)

	snapshot, err := SnapshotUnpaidEntries(db, "user-1")
	require.NoError(t, err)
	require.Equal(t, []int64{e1.ID, e2.ID}, snapshot.EntryIds)
	require.Equal(t, int64(1000), snapshot.TotalCents)
}

func TestMarkEntriesPaid_FlipsExactlyTheSnapshot(t *testing.T) {
	db := setupTestDB(t)

	e1 := accrue(t, db, "user-1", 300)
	e2 := accrue(t, db, "user-1", 700)
	late := accrue(t, db, "user-1", 50)

	require.NoError(t, MarkEntriesPaid(db, []int64{e1.ID, e2.ID}, "batch-1"))

	var paid []models.CommissionEntry
	require.NoError(t, db.Where("paid_out = ?", true).Find(&paid).Error)
	require.Len(t, paid, 2)
	for _, p := range paid {
		require.NotNil(t, p.PaidAt)
		require.NotNil(t, p.PayoutReference)
		require.Equal(t, "batch-1", *p.PayoutReference)
	}

	var unpaid models.CommissionEntry
	require.NoError(t, db.First(&unpaid, late.ID).Error)
	require.False(t, unpaid.PaidOut)
}

func TestMarkEntriesPaid_AllOrNothingOnConflict(t *testing.T) {
	db := setupTestDB(t)

	e1 := accrue(t, db, "user-1", 300)
	e2 := accrue(t, db, "user-1", 700)

	// e2 gets paid under another reference before our marking runs.
	require.NoError(t, MarkEntriesPaid(db, []int64{e2.ID}, "other-batch"))

	err := db.Transaction(func(tx *gorm.DB) error {
		return MarkEntriesPaid(tx, []int64{e1.ID, e2.ID}, "batch-1")
	})
	require.ErrorIs(t, err, ErrLedgerConflict)

	// The conflicting transaction rolled back: e1 is still unpaid and e2
	// keeps its original reference.
	var check1, check2 models.CommissionEntry
	require.NoError(t, db.First(&check1, e1.ID).Error)
	require.NoError(t, db.First(&check2, e2.ID).Error)
	require.False(t, check1.PaidOut)
	require.True(t, check2.PaidOut)
	require.Equal(t, "other-batch", *check2.PayoutReference)
}

func TestMarkEntriesPaid_EmptySet(t *testing.T) {
	db := setupTestDB(t)
	err := MarkEntriesPaid(db, nil, "batch-1")
	require.ErrorIs(t, err, ErrNoUnpaidCommissions)
}

func TestRecordCommission_DeduplicatesOnIdempotencyKey(t *testing.T) {
	db := setupTestDB(t)

	input := models.NewCommissionEntry{
		UserId:         "user-1",
		AmountCents:    500,
		Source:         models.CommissionSourceAffiliateSale,
		IdempotencyKey: "evt-123",
	}

	first, created, err := RecordCommission(db, &input)
	require.NoError(t, err)
	require.True(t, created)

	replay := input
	second, created, err := RecordCommission(db, &replay)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)

	require.Equal(t, int64(500), unpaidTotal(t, db, "user-1"))
}

func TestRecordCommission_NoKeyAlwaysCreates(t *testing.T) {
	db := setupTestDB(t)

	input := models.NewCommissionEntry{
		UserId:      "user-1",
		AmountCents: 500,
		Source:      models.CommissionSourceAffiliateSale,
	}
	_, created, err := RecordCommission(db, &input)
	require.NoError(t, err)
	require.True(t, created)

	again := models.NewCommissionEntry{
		UserId:      "user-1",
		AmountCents: 500,
		Source:      models.CommissionSourceAffiliateSale,
	}
	_, created, err = RecordCommission(db, &again)
	require.NoError(t, err)
	require.True(t, created)

	require.Equal(t, int64(1000), unpaidTotal(t, db, "user-1"))
}
