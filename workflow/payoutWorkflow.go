package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/earnflowhq/earnflow_backend/config"
	"github.com/earnflowhq/earnflow_backend/gateway"
	"github.com/earnflowhq/earnflow_backend/models"
	"github.com/earnflowhq/earnflow_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PayoutRequest is one user-initiated payout attempt.
type PayoutRequest struct {
	UserId             string
	Currency           string
	DestinationKind    models.PayoutDestinationKind
	DestinationAddress string
}

type PayoutConfig struct {
	MinimumPayoutCents int64
	LockTTL            time.Duration
	GatewayTimeout     time.Duration
	AllowStaleRate     bool
}

func DefaultPayoutConfig() PayoutConfig {
	return PayoutConfig{
		MinimumPayoutCents: 1000,
		LockTTL:            2 * time.Minute,
		GatewayTimeout:     45 * time.Second,
	}
}

// PayoutOrchestrator drives one payout attempt end to end: freeze a snapshot
// of unpaid entries, price it, submit exactly one transfer, then mark the
// snapshot paid. Every failure path leaves the ledger either fully untouched
// or flagged for reconciliation; there is no path that pays twice.
type PayoutOrchestrator struct {
	DB        *gorm.DB
	Logger    *logrus.Logger
	Gateway   gateway.PayoutGateway
	Converter *Converter
	Config    PayoutConfig

	// ObtainLock acquires the per-user payout mutex and returns its release
	// func. Defaults to the Redis lock; tests inject their own.
	ObtainLock func(ctx context.Context, userId string) (func(), error)
}

func NewPayoutOrchestrator(db *gorm.DB, logger *logrus.Logger, gw gateway.PayoutGateway, converter *Converter, cfg PayoutConfig) *PayoutOrchestrator {
	o := &PayoutOrchestrator{
		DB:        db,
		Logger:    logger,
		Gateway:   gw,
		Converter: converter,
		Config:    cfg,
	}
	o.ObtainLock = func(ctx context.Context, userId string) (func(), error) {
		lock, err := utils.ObtainUserPayoutLock(ctx, userId, o.Config.LockTTL, "payoutWorkflow.go", "RequestPayout")
		if err != nil {
			return nil, err
		}
		return func() { _ = lock.Release(context.Background()) }, nil
	}
	return o
}

func (o *PayoutOrchestrator) validate(req *PayoutRequest) error {
	if req.UserId == "" {
		return errors.New("user_id is required")
	}
	switch req.Currency {
	case models.CurrencyUSD, models.CurrencyBTC, models.CurrencyETH:
	default:
		return fmt.Errorf("unsupported payout currency %q", req.Currency)
	}
	if !req.DestinationKind.IsValid() {
		return fmt.Errorf("invalid destination kind %q", req.DestinationKind)
	}
	if req.DestinationAddress == "" {
		return errors.New("destination address is required")
	}
	if req.DestinationKind == models.PayoutDestinationWallet {
		normalized, err := utils.ValidateWalletPhone(req.DestinationAddress)
		if err != nil {
			return err
		}
		req.DestinationAddress = normalized
	}
	return nil
}

// RequestPayout executes one payout attempt for a user. On success the
// returned batch is SUCCEEDED and exactly the snapshotted entries are paid.
func (o *PayoutOrchestrator) RequestPayout(ctx context.Context, req PayoutRequest) (*models.PayoutBatch, error) {
	logger := o.Logger
	if err := o.validate(&req); err != nil {
		return nil, err
	}

	release, err := o.ObtainLock(ctx, req.UserId)
	if err != nil {
		if errors.Is(err, utils.ErrLockNotObtained) {
			return nil, ErrPayoutInProgress
		}
		config.LogError(logger, "payoutWorkflow.go", "RequestPayout", "ObtainLock", req.UserId, err)
		return nil, err
	}
	defer release()

	batch, err := o.createBatch(ctx, req)
	if err != nil {
		return nil, err
	}

	conv, err := o.Converter.Convert(ctx, batch.TotalCents, batch.Currency)
	if err != nil {
		config.LogError(logger, "payoutWorkflow.go", "RequestPayout", "Convert", batch.BatchId, err)
		o.markBatchFailed(ctx, batch, "rate unavailable: "+err.Error())
		return nil, err
	}
	batch.TargetAmount = conv.TargetAmount
	batch.RateUsed = conv.RateUsed
	batch.RateTimestamp = &conv.RateTimestamp
	batch.RateStale = conv.Stale

	// Persist SUBMITTED before the gateway call. If the process dies during
	// the call, the batch is visibly in flight and reconcilable by BatchId.
	now := time.Now().UTC()
	batch.Status = models.PayoutBatchStatusSubmitted
	batch.SubmittedAt = &now
	if err := o.DB.WithContext(ctx).Model(&models.PayoutBatch{}).
		Where("batch_id = ?", batch.BatchId).
		Updates(map[string]interface{}{
			"status":         batch.Status,
			"submitted_at":   batch.SubmittedAt,
			"target_amount":  batch.TargetAmount,
			"rate_used":      batch.RateUsed,
			"rate_timestamp": batch.RateTimestamp,
			"rate_stale":     batch.RateStale,
		}).Error; err != nil {
		config.LogError(logger, "payoutWorkflow.go", "RequestPayout", "Persist SUBMITTED", batch.BatchId, err)
		return nil, err
	}

	result, err := o.submitTransfer(ctx, batch)
	if err != nil {
		var ambiguous *TransferAmbiguousError
		if errors.As(err, &ambiguous) {
			o.flagReconciliation(ctx, batch, err.Error())
			return batch, err
		}
		o.markBatchFailed(ctx, batch, err.Error())
		return nil, err
	}

	if err := o.finishBatch(ctx, batch, result.TransferId); err != nil {
		return batch, err
	}
	return batch, nil
}

// createBatch freezes the unpaid snapshot and records the PENDING batch, all
// inside one transaction guarded by the per-user advisory lock.
func (o *PayoutOrchestrator) createBatch(ctx context.Context, req PayoutRequest) (*models.PayoutBatch, error) {
	logger := o.Logger
	var batch *models.PayoutBatch
	err := o.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireUserPayoutLock(tx, req.UserId); err != nil {
			config.LogError(logger, "payoutWorkflow.go", "createBatch", "AcquireUserPayoutLock", req.UserId, err)
			return err
		}
		defer ReleaseUserPayoutLock(tx, req.UserId)

		snapshot, err := SnapshotUnpaidEntries(tx, req.UserId)
		if err != nil {
			config.LogError(logger, "payoutWorkflow.go", "createBatch", "SnapshotUnpaidEntries", req.UserId, err)
			return err
		}
		if len(snapshot.EntryIds) == 0 {
			return ErrNoUnpaidCommissions
		}
		if snapshot.TotalCents < o.Config.MinimumPayoutCents {
			return &BelowMinimumError{TotalCents: snapshot.TotalCents, MinimumCents: o.Config.MinimumPayoutCents}
		}

		batch = &models.PayoutBatch{
			BatchId:            uuid.NewString(),
			UserId:             req.UserId,
			EntryIds:           models.Int64List(snapshot.EntryIds),
			TotalCents:         snapshot.TotalCents,
			Currency:           req.Currency,
			Status:             models.PayoutBatchStatusPending,
			DestinationKind:    req.DestinationKind,
			DestinationAddress: req.DestinationAddress,
		}
		if err := tx.Create(batch).Error; err != nil {
			config.LogError(logger, "payoutWorkflow.go", "createBatch", "Create batch", req.UserId, err)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// submitTransfer makes exactly one gateway submission, keyed by BatchId. An
// ambiguous outcome gets one status poll; anything still unresolved is
// returned as TransferAmbiguousError and must go to reconciliation.
func (o *PayoutOrchestrator) submitTransfer(ctx context.Context, batch *models.PayoutBatch) (*gateway.TransferResult, error) {
	logger := o.Logger
	callCtx, cancel := context.WithTimeout(ctx, o.Config.GatewayTimeout)
	defer cancel()

	result, err := o.Gateway.SubmitTransfer(callCtx, gateway.TransferRequest{
		IdempotencyKey:     batch.BatchId,
		Amount:             batch.TargetAmount,
		Currency:           batch.Currency,
		DestinationKind:    string(batch.DestinationKind),
		DestinationAddress: batch.DestinationAddress,
		Description:        fmt.Sprintf("commission payout %s", batch.BatchId),
	})
	if err == nil && result.Status == gateway.TransferStatusSucceeded {
		return result, nil
	}
	if err != nil && errors.Is(err, gateway.ErrTransferDeclined) {
		return nil, &TransferFailedError{BatchId: batch.BatchId, Err: err}
	}

	// Ambiguous or still pending: poll once by idempotency key before giving
	// up. The poll uses a fresh timeout; the submission deadline may already
	// be gone.
	if err != nil {
		config.LogError(logger, "payoutWorkflow.go", "submitTransfer", "SubmitTransfer ambiguous", batch.BatchId, err)
	}
	pollCtx, pollCancel := context.WithTimeout(ctx, o.Config.GatewayTimeout)
	defer pollCancel()
	status, pollErr := o.Gateway.TransferStatus(pollCtx, batch.BatchId)
	if pollErr != nil {
		config.LogError(logger, "payoutWorkflow.go", "submitTransfer", "TransferStatus", batch.BatchId, pollErr)
		if err == nil {
			err = pollErr
		}
		return nil, &TransferAmbiguousError{BatchId: batch.BatchId, Err: err}
	}
	switch status.Status {
	case gateway.TransferStatusSucceeded:
		return status, nil
	case gateway.TransferStatusFailed:
		return nil, &TransferFailedError{BatchId: batch.BatchId, Err: gateway.ErrTransferDeclined}
	default:
		if err == nil {
			err = fmt.Errorf("%w: transfer still %s", gateway.ErrTransferAmbiguous, status.Status)
		}
		return nil, &TransferAmbiguousError{BatchId: batch.BatchId, Err: err}
	}
}

// finishBatch marks the snapshot paid and the batch SUCCEEDED in one
// transaction. If that transaction cannot commit after money moved, the
// batch is flagged instead of retried; a fresh payout here would pay twice.
func (o *PayoutOrchestrator) finishBatch(ctx context.Context, batch *models.PayoutBatch, transferId string) error {
	logger := o.Logger
	now := time.Now().UTC()
	err := o.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := MarkEntriesPaid(tx, []int64(batch.EntryIds), paidReference(batch, transferId)); err != nil {
			return err
		}
		batch.Status = models.PayoutBatchStatusSucceeded
		batch.ExternalTransferId = &transferId
		batch.CompletedAt = &now
		batch.NeedsReconciliation = false
		if err := tx.Model(&models.PayoutBatch{}).
			Where("batch_id = ?", batch.BatchId).
			Updates(map[string]interface{}{
				"status":               batch.Status,
				"external_transfer_id": batch.ExternalTransferId,
				"completed_at":         batch.CompletedAt,
				"needs_reconciliation": false,
				"last_error":           nil,
			}).Error; err != nil {
			return err
		}
		return models.EnqueuePayoutEvent(ctx, tx, models.PayoutEventSucceeded, batch, "")
	})
	if err != nil {
		config.LogError(logger, "payoutWorkflow.go", "finishBatch", "MarkEntriesPaid", batch.BatchId, err)
		o.flagReconciliation(ctx, batch, "post-transfer ledger update failed: "+err.Error())
		return &PostTransferReconciliationError{BatchId: batch.BatchId, TransferId: transferId, Err: err}
	}
	return nil
}

// paidReference is what entries carry in payout_reference: the gateway's
// transfer id, or the batch id when the provider returned none.
func paidReference(batch *models.PayoutBatch, transferId string) string {
	if transferId != "" {
		return transferId
	}
	return batch.BatchId
}

// markBatchFailed records a terminal failure. The ledger is untouched, so
// the entries stay payable by a later attempt.
func (o *PayoutOrchestrator) markBatchFailed(ctx context.Context, batch *models.PayoutBatch, reason string) {
	logger := o.Logger
	now := time.Now().UTC()
	err := o.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch.Status = models.PayoutBatchStatusFailed
		batch.LastError = &reason
		batch.CompletedAt = &now
		if err := tx.Model(&models.PayoutBatch{}).
			Where("batch_id = ?", batch.BatchId).
			Updates(map[string]interface{}{
				"status":       batch.Status,
				"last_error":   &reason,
				"completed_at": &now,
			}).Error; err != nil {
			return err
		}
		return models.EnqueuePayoutEvent(ctx, tx, models.PayoutEventFailed, batch, reason)
	})
	if err != nil {
		config.LogError(logger, "payoutWorkflow.go", "markBatchFailed", "Persist FAILED", batch.BatchId, err)
	}
}

// flagReconciliation parks the batch for the operator. The batch keeps its
// SUBMITTED status; only ResolveFlaggedBatches may move it forward.
func (o *PayoutOrchestrator) flagReconciliation(ctx context.Context, batch *models.PayoutBatch, reason string) {
	logger := o.Logger
	err := o.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		batch.NeedsReconciliation = true
		batch.LastError = &reason
		if err := tx.Model(&models.PayoutBatch{}).
			Where("batch_id = ?", batch.BatchId).
			Updates(map[string]interface{}{
				"needs_reconciliation": true,
				"last_error":           &reason,
			}).Error; err != nil {
			return err
		}
		return models.EnqueuePayoutEvent(ctx, tx, models.PayoutEventReconciliationRequired, batch, reason)
	})
	if err != nil {
		config.LogError(logger, "payoutWorkflow.go", "flagReconciliation", "Flag batch", batch.BatchId, err)
	}
}
