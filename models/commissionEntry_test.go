package models

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

func accrue(t *testing.T, db *gorm.DB, userId string, cents int64) *CommissionEntry {
	t.Helper()
	entry, err := CreateCommissionEntry(db, &NewCommissionEntry{
		UserId:      userId,
		AmountCents: cents,
		Source:      CommissionSourceTaskCompletion,
		Description: "test accrual",
	})
	require.NoError(t, err)
	return entry
}

func TestCreateCommissionEntry_StartsUnpaid(t *testing.T) {
	db := setupTestDB(t)

	entry := accrue(t, db, "user-1", 500)
	require.False(t, entry.PaidOut)
	require.Nil(t, entry.PaidAt)
	require.Nil(t, entry.PayoutReference)
}

func TestCreateCommissionEntry_RejectsBadInput(t *testing.T) {
	db := setupTestDB(t)

	_, err := CreateCommissionEntry(db, &NewCommissionEntry{
		UserId:      "user-1",
		AmountCents: -100,
		Source:      CommissionSourceTaskCompletion,
	})
	require.Error(t, err)

	_, err = CreateCommissionEntry(db, &NewCommissionEntry{
		UserId:      "user-1",
		AmountCents: 100,
		Source:      CommissionSource("BOGUS"),
	})
	require.Error(t, err)

	// Operator-only source is not accepted through the accrual input.
	_, err = CreateCommissionEntry(db, &NewCommissionEntry{
		UserId:      "user-1",
		AmountCents: 100,
		Source:      CommissionSourceAdjustment,
	})
	require.Error(t, err)

	_, err = CreateCommissionEntry(db, &NewCommissionEntry{
		AmountCents: 100,
		Source:      CommissionSourceTaskCompletion,
	})
	require.Error(t, err)
}

func TestCreateCommissionEntry_AcceptsZeroAmount(t *testing.T) {
	db := setupTestDB(t)
	entry := accrue(t, db, "user-1", 0)
	require.Equal(t, int64(0), entry.AmountCents)
}

func TestUnpaidSummary_CountsOnlyUnpaidForUser(t *testing.T) {
	db := setupTestDB(t)

	accrue(t, db, "user-1", 500)
	accrue(t, db, "user-1", 250)
	paid := accrue(t, db, "user-1", 1000)
	accrue(t, db, "user-2", 9999)

	ref := "batch-x"
	require.NoError(t, db.Model(&CommissionEntry{}).
		Where("id = ? AND paid_out = ?", paid.ID, false).
		Updates(map[string]interface{}{"paid_out": true, "payout_reference": ref}).Error)

	summary, err := GetUnpaidSummary(db, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(750), summary.TotalUnpaidCents)
	require.Equal(t, int64(2), summary.Count)
}

func TestCommissionEntry_PaidRowsAreImmutable(t *testing.T) {
	db := setupTestDB(t)

	entry := accrue(t, db, "user-1", 500)
	require.NoError(t, db.Model(&CommissionEntry{}).
		Where("id = ?", entry.ID).
		Updates(map[string]interface{}{"paid_out": true}).Error)

	var paid CommissionEntry
	require.NoError(t, db.First(&paid, entry.ID).Error)
	paid.AmountCents = 99999
	err := db.Save(&paid).Error
	require.ErrorIs(t, err, ErrPaidEntryImmutable)

	var check CommissionEntry
	require.NoError(t, db.First(&check, entry.ID).Error)
	require.Equal(t, int64(500), check.AmountCents)
}

func TestCommissionEntry_DeleteIsRejected(t *testing.T) {
	db := setupTestDB(t)

	entry := accrue(t, db, "user-1", 500)
	err := db.Delete(entry).Error
	require.ErrorIs(t, err, ErrEntriesAppendOnly)

	var count int64
	require.NoError(t, db.Model(&CommissionEntry{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestUsersWithUnpaidBalance(t *testing.T) {
	db := setupTestDB(t)

	accrue(t, db, "user-b", 100)
	accrue(t, db, "user-a", 100)
	accrue(t, db, "user-a", 200)

	users, err := UsersWithUnpaidBalance(db)
	require.NoError(t, err)
	require.Equal(t, []string{"user-a", "user-b"}, users)
}
