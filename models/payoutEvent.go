package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/earnflowhq/earnflow_backend/appctx"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PayoutEventRecord is a transactional-outbox row for payout lifecycle
// events. It is written in the same DB transaction as the state change it
// announces and published to Pub/Sub after commit by the outbox dispatcher.
type PayoutEventRecord struct {
	ID               int64           `gorm:"primary_key" json:"id"`
	EventType        PayoutEventType `gorm:"size:64;not null" json:"event_type"`
	BatchId          string          `gorm:"size:36;not null;index" json:"batch_id"`
	UserId           string          `gorm:"size:64;not null" json:"user_id"`
	Payload          []byte          `gorm:"type:json" json:"payload"`
	PublishStatus    string          `gorm:"size:16;not null;index;default:PENDING" json:"publish_status"`
	PublishAttempts  int             `gorm:"not null;default:0" json:"publish_attempts"`
	LastPublishError *string         `gorm:"type:text" json:"last_publish_error"`
	NextAttemptAt    *time.Time      `json:"next_attempt_at"`
	LockedAt         *time.Time      `json:"locked_at"`
	LockedBy         *string         `gorm:"size:64" json:"locked_by"`
	PublishedAt      *time.Time      `json:"published_at"`
	PubSubMessageId  *string         `gorm:"size:64" json:"pub_sub_message_id"`
	CorrelationId    string          `gorm:"size:64" json:"correlation_id"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type payoutEventPayload struct {
	BatchId            string            `json:"batch_id"`
	UserId             string            `json:"user_id"`
	TotalCents         int64             `json:"total_cents"`
	Currency           string            `json:"currency"`
	Status             PayoutBatchStatus `json:"status"`
	ExternalTransferId *string           `json:"external_transfer_id,omitempty"`
	Reason             string            `json:"reason,omitempty"`
}

// EnqueuePayoutEvent writes an outbox row inside the caller's transaction.
// It never publishes directly; publishing happens after commit.
func EnqueuePayoutEvent(ctx context.Context, tx *gorm.DB, eventType PayoutEventType, batch *PayoutBatch, reason string) error {
	payload, err := json.Marshal(payoutEventPayload{
		BatchId:            batch.BatchId,
		UserId:             batch.UserId,
		TotalCents:         batch.TotalCents,
		Currency:           batch.Currency,
		Status:             batch.Status,
		ExternalTransferId: batch.ExternalTransferId,
		Reason:             reason,
	})
	if err != nil {
		return err
	}
	record := PayoutEventRecord{
		EventType:     eventType,
		BatchId:       batch.BatchId,
		UserId:        batch.UserId,
		Payload:       payload,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if cid, ok := appctx.GetString(ctx, appctx.ContextKeyCorrelationId); ok && cid != "" {
			return cid
		}
	}
	return uuid.NewString()
}
