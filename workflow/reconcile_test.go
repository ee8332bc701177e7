package workflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/earnflowhq/earnflow_backend/gateway"
	"github.com/earnflowhq/earnflow_backend/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func flaggedBatchFixture(t *testing.T, db *gorm.DB, userId string) (*models.PayoutBatch, []int64) {
	t.Helper()
	accrue(t, db, userId, 1200)
	accrue(t, db, userId, 800)

	gw := &fakeGateway{
		submitErr:    fmt.Errorf("%w: request timed out", gateway.ErrTransferAmbiguous),
		statusResult: &gateway.TransferResult{Status: gateway.TransferStatusUnknown},
	}
	o := newTestOrchestrator(db, gw)
	batch, err := o.RequestPayout(context.Background(), usdRequest(userId))
	var ambiguous *TransferAmbiguousError
	require.ErrorAs(t, err, &ambiguous)
	return batch, []int64(batch.EntryIds)
}

func TestResolveFlaggedBatches_SucceededCompletesPayout(t *testing.T) {
	db := setupTestDB(t)
	batch, _ := flaggedBatchFixture(t, db, "user-1")

	gw := &fakeGateway{statusResult: &gateway.TransferResult{
		TransferId: "tr-late",
		Status:     gateway.TransferStatusSucceeded,
	}}

	summary, err := ResolveFlaggedBatches(context.Background(), db, testLogger(), gw)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Checked)
	require.Equal(t, 1, summary.Succeeded)

	stored, err := models.GetPayoutBatchByBatchId(db, batch.BatchId)
	require.NoError(t, err)
	require.Equal(t, models.PayoutBatchStatusSucceeded, stored.Status)
	require.False(t, stored.NeedsReconciliation)
	require.Equal(t, "tr-late", *stored.ExternalTransferId)
	require.Equal(t, int64(0), unpaidTotal(t, db, "user-1"))

	var paid int64
	require.NoError(t, db.Model(&models.CommissionEntry{}).
		Where("payout_reference = ?", "tr-late").Count(&paid).Error)
	require.Equal(t, int64(2), paid)
}

func TestResolveFlaggedBatches_FailedReleasesEntries(t *testing.T) {
	db := setupTestDB(t)
	batch, _ := flaggedBatchFixture(t, db, "user-1")

	gw := &fakeGateway{statusResult: &gateway.TransferResult{
		Status:  gateway.TransferStatusFailed,
		Message: "destination account closed",
	}}

	summary, err := ResolveFlaggedBatches(context.Background(), db, testLogger(), gw)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Failed)

	stored, err := models.GetPayoutBatchByBatchId(db, batch.BatchId)
	require.NoError(t, err)
	require.Equal(t, models.PayoutBatchStatusFailed, stored.Status)
	require.False(t, stored.NeedsReconciliation)

	// The entries were never paid and are available to a fresh attempt.
	require.Equal(t, int64(2000), unpaidTotal(t, db, "user-1"))
}

func TestResolveFlaggedBatches_UnknownStaysFlagged(t *testing.T) {
	db := setupTestDB(t)
	batch, _ := flaggedBatchFixture(t, db, "user-1")

	gw := &fakeGateway{statusResult: &gateway.TransferResult{Status: gateway.TransferStatusUnknown}}

	summary, err := ResolveFlaggedBatches(context.Background(), db, testLogger(), gw)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Unknown)

	stored, err := models.GetPayoutBatchByBatchId(db, batch.BatchId)
	require.NoError(t, err)
	require.True(t, stored.NeedsReconciliation)
	require.Equal(t, models.PayoutBatchStatusSubmitted, stored.Status)
}

func TestResolveFlaggedBatches_ResweepIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	batch, _ := flaggedBatchFixture(t, db, "user-1")

	gw := &fakeGateway{statusResult: &gateway.TransferResult{
		TransferId: "tr-late",
		Status:     gateway.TransferStatusSucceeded,
	}}

	_, err := ResolveFlaggedBatches(context.Background(), db, testLogger(), gw)
	require.NoError(t, err)

	// Re-flag the settled batch (operator mistake) and sweep again: the
	// entries already carry this batch's reference, so the sweep settles
	// cleanly instead of reporting a conflict.
	require.NoError(t, db.Model(&models.PayoutBatch{}).
		Where("batch_id = ?", batch.BatchId).
		Update("needs_reconciliation", true).Error)

	summary, err := ResolveFlaggedBatches(context.Background(), db, testLogger(), gw)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Succeeded)
	require.Equal(t, 0, summary.Errors)
	require.Equal(t, int64(0), unpaidTotal(t, db, "user-1"))
}

func TestResolveFlaggedBatches_ForeignConflictStaysFlagged(t *testing.T) {
	db := setupTestDB(t)
	batch, entryIds := flaggedBatchFixture(t, db, "user-1")

	// One snapshotted entry got paid under a different reference.
	require.NoError(t, MarkEntriesPaid(db, entryIds[:1], "rogue-batch"))

	gw := &fakeGateway{statusResult: &gateway.TransferResult{
		TransferId: "tr-late",
		Status:     gateway.TransferStatusSucceeded,
	}}

	summary, err := ResolveFlaggedBatches(context.Background(), db, testLogger(), gw)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Errors)

	stored, err := models.GetPayoutBatchByBatchId(db, batch.BatchId)
	require.NoError(t, err)
	require.True(t, stored.NeedsReconciliation)
}
