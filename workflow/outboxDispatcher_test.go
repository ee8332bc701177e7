package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/earnflowhq/earnflow_backend/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func enqueueTestEvent(t *testing.T, db *gorm.DB, batchId string) *models.PayoutEventRecord {
	t.Helper()
	batch := &models.PayoutBatch{
		BatchId:    batchId,
		UserId:     "user-1",
		TotalCents: 1000,
		Currency:   models.CurrencyUSD,
		Status:     models.PayoutBatchStatusSucceeded,
	}
	require.NoError(t, db.Create(batch).Error)
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return models.EnqueuePayoutEvent(context.Background(), tx, models.PayoutEventSucceeded, batch, "")
	}))
	var rec models.PayoutEventRecord
	require.NoError(t, db.Where("batch_id = ?", batchId).First(&rec).Error)
	require.Equal(t, models.OutboxPublishStatusPending, rec.PublishStatus)
	return &rec
}

func newTestDispatcher(db *gorm.DB) *OutboxDispatcher {
	d := NewOutboxDispatcher(db, testLogger())
	d.PollInterval = time.Millisecond
	return d
}

func TestOutboxDispatcher_PublishesPendingEvents(t *testing.T) {
	db := setupTestDB(t)
	rec := enqueueTestEvent(t, db, "batch-1")

	var published [][]byte
	d := newTestDispatcher(db)
	d.Publish = func(ctx context.Context, eventType string, data []byte) (string, error) {
		require.Equal(t, string(models.PayoutEventSucceeded), eventType)
		published = append(published, data)
		return "msg-1", nil
	}

	d.DispatchOnce(context.Background())
	require.Len(t, published, 1)

	var after models.PayoutEventRecord
	require.NoError(t, db.First(&after, rec.ID).Error)
	require.Equal(t, models.OutboxPublishStatusSent, after.PublishStatus)
	require.NotNil(t, after.PublishedAt)
	require.Equal(t, "msg-1", *after.PubSubMessageId)
	require.Equal(t, 1, after.PublishAttempts)
}

func TestOutboxDispatcher_FailureSchedulesRetryWithBackoff(t *testing.T) {
	db := setupTestDB(t)
	rec := enqueueTestEvent(t, db, "batch-1")

	d := newTestDispatcher(db)
	d.Publish = func(ctx context.Context, eventType string, data []byte) (string, error) {
		return "", errors.New("broker unavailable")
	}

	d.DispatchOnce(context.Background())

	var after models.PayoutEventRecord
	require.NoError(t, db.First(&after, rec.ID).Error)
	require.Equal(t, models.OutboxPublishStatusFailed, after.PublishStatus)
	require.Equal(t, 1, after.PublishAttempts)
	require.NotNil(t, after.LastPublishError)
	require.NotNil(t, after.NextAttemptAt)
	require.True(t, after.NextAttemptAt.After(time.Now().UTC()))

	// Not eligible again until the backoff elapses.
	var calls int
	d.Publish = func(ctx context.Context, eventType string, data []byte) (string, error) {
		calls++
		return "msg-1", nil
	}
	d.DispatchOnce(context.Background())
	require.Equal(t, 0, calls)
}

func TestOutboxDispatcher_DeadAfterMaxAttempts(t *testing.T) {
	db := setupTestDB(t)
	rec := enqueueTestEvent(t, db, "batch-1")

	d := newTestDispatcher(db)
	d.MaxAttempts = 2
	d.InitialBackoff = 0
	d.Publish = func(ctx context.Context, eventType string, data []byte) (string, error) {
		return "", errors.New("broker unavailable")
	}

	d.DispatchOnce(context.Background())
	d.DispatchOnce(context.Background())
	// Third sweep sees attempts >= MaxAttempts and goes terminal.
	d.DispatchOnce(context.Background())

	var after models.PayoutEventRecord
	require.NoError(t, db.First(&after, rec.ID).Error)
	require.Equal(t, models.OutboxPublishStatusDead, after.PublishStatus)

	// DEAD rows are never picked up again.
	var calls int
	d.Publish = func(ctx context.Context, eventType string, data []byte) (string, error) {
		calls++
		return "msg-1", nil
	}
	d.DispatchOnce(context.Background())
	require.Equal(t, 0, calls)
}

func TestOutboxDispatcher_ReclaimsStaleProcessingRows(t *testing.T) {
	db := setupTestDB(t)
	rec := enqueueTestEvent(t, db, "batch-1")

	// Simulate a dispatcher that crashed mid-batch: row claimed long ago.
	staleAt := time.Now().UTC().Add(-time.Hour)
	who := "dead-dispatcher"
	require.NoError(t, db.Model(&models.PayoutEventRecord{}).
		Where("id = ?", rec.ID).
		Updates(map[string]interface{}{
			"publish_status":   models.OutboxPublishStatusProcessing,
			"locked_at":        &staleAt,
			"locked_by":        &who,
			"publish_attempts": 1,
		}).Error)

	var calls int
	d := newTestDispatcher(db)
	d.Publish = func(ctx context.Context, eventType string, data []byte) (string, error) {
		calls++
		return "msg-2", nil
	}
	d.DispatchOnce(context.Background())
	require.Equal(t, 1, calls)

	var after models.PayoutEventRecord
	require.NoError(t, db.First(&after, rec.ID).Error)
	require.Equal(t, models.OutboxPublishStatusSent, after.PublishStatus)
}
