package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Transfer outcome classification. Declined is terminal and safe to retry as
// a fresh payout; ambiguous means the gateway may or may not have executed
// the transfer and the caller must resolve the outcome by idempotency key
// before touching the ledger.
var (
	ErrTransferDeclined  = errors.New("transfer declined by gateway")
	ErrTransferAmbiguous = errors.New("transfer outcome ambiguous")
)

type TransferStatus string

const (
	TransferStatusSucceeded TransferStatus = "succeeded"
	TransferStatusFailed    TransferStatus = "failed"
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusUnknown   TransferStatus = "unknown"
)

// TransferRequest describes one outbound value transfer. IdempotencyKey must
// be stable per payout batch: the gateway deduplicates on it, which makes a
// transport-level retry of the same HTTP call safe.
type TransferRequest struct {
	IdempotencyKey     string          `json:"idempotency_key"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	DestinationKind    string          `json:"destination_kind"`
	DestinationAddress string          `json:"destination_address"`
	Description        string          `json:"description,omitempty"`
}

type TransferResult struct {
	TransferId string         `json:"transfer_id"`
	Status     TransferStatus `json:"status"`
	Message    string         `json:"message,omitempty"`
}

// PayoutGateway executes value transfers. TransferStatus looks up the
// definitive outcome of a prior submission by its idempotency key; it is the
// only sanctioned way to resolve an ambiguous result.
type PayoutGateway interface {
	SubmitTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	TransferStatus(ctx context.Context, idempotencyKey string) (*TransferResult, error)
}
