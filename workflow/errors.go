package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrNoUnpaidCommissions: the payout snapshot came back empty. No side
	// effects were performed; safe to show the user.
	ErrNoUnpaidCommissions = errors.New("no unpaid commissions")

	// ErrPayoutInProgress: another payout attempt currently holds the
	// per-user lock. The caller should retry later, never force through.
	ErrPayoutInProgress = errors.New("payout already in progress for user")

	// ErrLedgerConflict: a concurrent mutation was detected while marking
	// entries paid. The whole marking aborted; no entry changed state.
	ErrLedgerConflict = errors.New("ledger conflict: one or more entries already paid")
)

// BelowMinimumError aborts a payout whose snapshot total is under the
// configured minimum. No gateway call has been made.
type BelowMinimumError struct {
	TotalCents   int64
	MinimumCents int64
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("unpaid total %d cents is below the minimum payout of %d cents", e.TotalCents, e.MinimumCents)
}

// TransferFailedError: the gateway explicitly declined. The ledger is
// untouched and a fresh payout attempt is safe.
type TransferFailedError struct {
	BatchId string
	Err     error
}

func (e *TransferFailedError) Error() string {
	return fmt.Sprintf("transfer for batch %s failed: %v", e.BatchId, e.Err)
}

func (e *TransferFailedError) Unwrap() error { return e.Err }

// TransferAmbiguousError: the gateway call timed out or returned an
// indeterminate status, and polling by idempotency key did not settle it.
// Must not be auto-retried; the batch stays flagged for reconciliation.
type TransferAmbiguousError struct {
	BatchId string
	Err     error
}

func (e *TransferAmbiguousError) Error() string {
	return fmt.Sprintf("transfer for batch %s has an ambiguous outcome: %v", e.BatchId, e.Err)
}

func (e *TransferAmbiguousError) Unwrap() error { return e.Err }

// PostTransferReconciliationError: money was sent but the ledger update
// failed. Retrying as a fresh payout would double-pay; the batch is flagged
// for operator reconciliation instead.
type PostTransferReconciliationError struct {
	BatchId    string
	TransferId string
	Err        error
}

func (e *PostTransferReconciliationError) Error() string {
	return fmt.Sprintf("transfer %s for batch %s succeeded but the ledger update failed: %v", e.TransferId, e.BatchId, e.Err)
}

func (e *PostTransferReconciliationError) Unwrap() error { return e.Err }
