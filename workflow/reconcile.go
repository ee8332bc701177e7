package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/earnflowhq/earnflow_backend/config"
	"github.com/earnflowhq/earnflow_backend/gateway"
	"github.com/earnflowhq/earnflow_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReconcileSummary reports one reconciliation sweep over flagged batches.
type ReconcileSummary struct {
	Checked   int `json:"checked"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Unknown   int `json:"unknown"`
	Errors    int `json:"errors"`
}

// ResolveFlaggedBatches polls the gateway for every batch flagged for
// reconciliation and settles the ones with a definitive outcome. Batches the
// gateway still reports as pending or unknown stay flagged for a later sweep;
// nothing here ever re-submits a transfer.
func ResolveFlaggedBatches(ctx context.Context, db *gorm.DB, logger *logrus.Logger, gw gateway.PayoutGateway) (*ReconcileSummary, error) {
	batches, err := models.FlaggedBatches(db.WithContext(ctx))
	if err != nil {
		config.LogError(logger, "reconcile.go", "ResolveFlaggedBatches", "FlaggedBatches", nil, err)
		return nil, err
	}

	summary := &ReconcileSummary{}
	for i := range batches {
		batch := &batches[i]
		summary.Checked++

		status, err := gw.TransferStatus(ctx, batch.BatchId)
		if err != nil {
			config.LogError(logger, "reconcile.go", "ResolveFlaggedBatches", "TransferStatus", batch.BatchId, err)
			summary.Errors++
			continue
		}

		switch status.Status {
		case gateway.TransferStatusSucceeded:
			if err := settleSucceeded(ctx, db, batch, status.TransferId); err != nil {
				config.LogError(logger, "reconcile.go", "ResolveFlaggedBatches", "settleSucceeded", batch.BatchId, err)
				summary.Errors++
				continue
			}
			summary.Succeeded++
		case gateway.TransferStatusFailed:
			if err := settleFailed(ctx, db, batch, status.Message); err != nil {
				config.LogError(logger, "reconcile.go", "ResolveFlaggedBatches", "settleFailed", batch.BatchId, err)
				summary.Errors++
				continue
			}
			summary.Failed++
		default:
			// Still in flight at the provider. Leave flagged.
			summary.Unknown++
		}
	}
	return summary, nil
}

// settleSucceeded completes a flagged batch whose transfer turned out to
// have gone through: mark the frozen snapshot paid and unflag, atomically.
// A ledger conflict here means some entry was already paid under another
// reference; that is an operator problem, so the batch stays flagged.
func settleSucceeded(ctx context.Context, db *gorm.DB, batch *models.PayoutBatch, transferId string) error {
	if transferId == "" && batch.ExternalTransferId != nil {
		transferId = *batch.ExternalTransferId
	}
	reference := paidReference(batch, transferId)
	now := time.Now().UTC()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := MarkEntriesPaid(tx, []int64(batch.EntryIds), reference)
		if err != nil && !alreadyPaidByThisBatch(tx, batch, reference, err) {
			return err
		}
		batch.Status = models.PayoutBatchStatusSucceeded
		batch.ExternalTransferId = &transferId
		batch.NeedsReconciliation = false
		batch.CompletedAt = &now
		if err := tx.Model(&models.PayoutBatch{}).
			Where("batch_id = ?", batch.BatchId).
			Updates(map[string]interface{}{
				"status":               models.PayoutBatchStatusSucceeded,
				"external_transfer_id": &transferId,
				"needs_reconciliation": false,
				"completed_at":         &now,
				"last_error":           nil,
			}).Error; err != nil {
			return err
		}
		return models.EnqueuePayoutEvent(ctx, tx, models.PayoutEventSucceeded, batch, "resolved by reconciliation")
	})
}

// alreadyPaidByThisBatch recognizes the idempotent-resweep case: every entry
// in the snapshot already carries this batch's transfer reference, so a
// prior sweep (or a crashed finishBatch that got further than it reported)
// did the marking. Any other conflict is real.
func alreadyPaidByThisBatch(tx *gorm.DB, batch *models.PayoutBatch, reference string, markErr error) bool {
	if !errors.Is(markErr, ErrLedgerConflict) {
		return false
	}
	var n int64
	if err := tx.Model(&models.CommissionEntry{}).
		Where("id IN ? AND paid_out = ? AND payout_reference = ?", []int64(batch.EntryIds), true, reference).
		Count(&n).Error; err != nil {
		return false
	}
	return n == int64(len(batch.EntryIds))
}

// settleFailed closes a flagged batch whose transfer never executed. The
// entries were never marked, so they simply become payable again.
func settleFailed(ctx context.Context, db *gorm.DB, batch *models.PayoutBatch, message string) error {
	reason := "transfer failed at provider"
	if message != "" {
		reason = reason + ": " + message
	}
	now := time.Now().UTC()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch.Status = models.PayoutBatchStatusFailed
		batch.NeedsReconciliation = false
		batch.LastError = &reason
		batch.CompletedAt = &now
		if err := tx.Model(&models.PayoutBatch{}).
			Where("batch_id = ?", batch.BatchId).
			Updates(map[string]interface{}{
				"status":               models.PayoutBatchStatusFailed,
				"needs_reconciliation": false,
				"last_error":           &reason,
				"completed_at":         &now,
			}).Error; err != nil {
			return err
		}
		return models.EnqueuePayoutEvent(ctx, tx, models.PayoutEventFailed, batch, reason)
	})
}
