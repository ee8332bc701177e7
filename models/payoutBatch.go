package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Int64List stores a slice of entry ids as a JSON column.
type Int64List []int64

func (l Int64List) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]int64(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *Int64List) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Int64List", value)
	}
	return json.Unmarshal(data, (*[]int64)(l))
}

// PayoutBatch is the atomic unit of "this exact set of entries was paid by
// this one external transfer". BatchId doubles as the gateway idempotency key
// so a transport-level retry of the same submission cannot create two
// transfers. The snapshot (EntryIds + TotalCents) is frozen at creation and
// is the only set MarkEntriesPaid may ever be called with for this batch.
type PayoutBatch struct {
	ID                  int64                 `gorm:"primary_key" json:"id"`
	BatchId             string                `gorm:"size:36;not null;uniqueIndex" json:"batch_id"`
	UserId              string                `gorm:"size:64;not null;index" json:"user_id"`
	EntryIds            Int64List             `gorm:"type:json" json:"entry_ids"`
	TotalCents          int64                 `gorm:"not null" json:"total_cents"`
	Currency            string                `gorm:"size:8;not null" json:"currency"`
	TargetAmount        decimal.Decimal       `gorm:"type:decimal(30,8);default:0" json:"target_amount"`
	RateUsed            decimal.Decimal       `gorm:"type:decimal(20,8);default:0" json:"rate_used"`
	RateTimestamp       *time.Time            `json:"rate_timestamp"`
	RateStale           bool                  `gorm:"not null;default:false" json:"rate_stale"`
	Status              PayoutBatchStatus     `gorm:"size:16;not null;index" json:"status"`
	ExternalTransferId  *string               `gorm:"size:128" json:"external_transfer_id"`
	NeedsReconciliation bool                  `gorm:"not null;default:false;index" json:"needs_reconciliation"`
	LastError           *string               `gorm:"type:text" json:"last_error"`
	DestinationKind     PayoutDestinationKind `gorm:"size:16" json:"destination_kind"`
	DestinationAddress  string                `gorm:"size:255" json:"destination_address"`
	CreatedAt           time.Time             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time             `gorm:"autoUpdateTime" json:"updated_at"`
	SubmittedAt         *time.Time            `json:"submitted_at"`
	CompletedAt         *time.Time            `json:"completed_at"`
}

func GetPayoutBatchByBatchId(db *gorm.DB, batchId string) (*PayoutBatch, error) {
	var batch PayoutBatch
	err := db.Where("batch_id = ?", batchId).First(&batch).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, err
	}
	return &batch, nil
}

// FlaggedBatches returns batches waiting on operator reconciliation:
// submitted transfers with an unknown outcome, or succeeded transfers whose
// ledger update failed.
func FlaggedBatches(db *gorm.DB) ([]PayoutBatch, error) {
	var batches []PayoutBatch
	err := db.Where("needs_reconciliation = ?", true).
		Order("id ASC").
		Find(&batches).Error
	return batches, err
}

func ListPayoutBatches(db *gorm.DB, userId string, limit int) ([]PayoutBatch, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var batches []PayoutBatch
	err := db.Where("user_id = ?", userId).
		Order("id DESC").
		Limit(limit).
		Find(&batches).Error
	return batches, err
}
