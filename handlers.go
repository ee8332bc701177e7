package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/earnflowhq/earnflow_backend/config"
	"github.com/earnflowhq/earnflow_backend/models"
	"github.com/earnflowhq/earnflow_backend/models/reports"
	"github.com/earnflowhq/earnflow_backend/pricing"
	"github.com/earnflowhq/earnflow_backend/utils"
	"github.com/earnflowhq/earnflow_backend/workflow"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("earnflow-backend")

func bindError(c *gin.Context, err error) {
	if fields := utils.ProcessValidationErrors(err); fields != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "fields": fields})
		return
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
}

func recordCommissionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewCommissionEntry
		if err := c.ShouldBindJSON(&input); err != nil {
			bindError(c, err)
			return
		}
		if input.IdempotencyKey == "" {
			input.IdempotencyKey = c.GetHeader("Idempotency-Key")
		}

		entry, created, err := workflow.RecordCommission(config.GetDB().WithContext(c.Request.Context()), &input)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		status := http.StatusCreated
		if !created {
			status = http.StatusOK
		}
		c.JSON(status, gin.H{
			"entry":          entry,
			"created":        created,
			"correlation_id": cid,
		})
	}
}

func unpaidSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.Param("userId")
		summary, err := models.GetUnpaidSummary(config.GetDB().WithContext(c.Request.Context()), userId)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"user_id": userId,
			"summary": summary,
		})
	}
}

func listCommissionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.Param("userId")
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		entries, err := models.ListCommissionEntries(config.GetDB().WithContext(c.Request.Context()), userId, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"user_id": userId,
			"entries": entries,
		})
	}
}

type payoutRequestBody struct {
	Currency           string `json:"currency" binding:"required"`
	DestinationKind    string `json:"destination_kind" binding:"required"`
	DestinationAddress string `json:"destination_address" binding:"required"`
}

func requestPayoutHandler(orchestrator *workflow.PayoutOrchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.Param("userId")
		var body payoutRequestBody
		if err := c.ShouldBindJSON(&body); err != nil {
			bindError(c, err)
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "RequestPayout")
		defer span.End()

		batch, err := orchestrator.RequestPayout(ctx, workflow.PayoutRequest{
			UserId:             userId,
			Currency:           body.Currency,
			DestinationKind:    models.PayoutDestinationKind(body.DestinationKind),
			DestinationAddress: body.DestinationAddress,
		})
		if err != nil {
			writePayoutError(c, batch, err)
			return
		}
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{
			"batch":          batch,
			"correlation_id": cid,
		})
	}
}

// writePayoutError maps workflow failures onto HTTP statuses. Ambiguous and
// post-transfer failures return 502 with the batch id so callers can track
// reconciliation; they must not look like retryable client errors.
func writePayoutError(c *gin.Context, batch *models.PayoutBatch, err error) {
	var belowMin *workflow.BelowMinimumError
	var declined *workflow.TransferFailedError
	var ambiguous *workflow.TransferAmbiguousError
	var postTransfer *workflow.PostTransferReconciliationError

	switch {
	case errors.Is(err, workflow.ErrNoUnpaidCommissions):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, workflow.ErrPayoutInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &belowMin):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":         err.Error(),
			"total_cents":   belowMin.TotalCents,
			"minimum_cents": belowMin.MinimumCents,
		})
	case errors.Is(err, pricing.ErrRateUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.As(err, &declined):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "batch_id": declined.BatchId})
	case errors.As(err, &ambiguous):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":                err.Error(),
			"batch_id":             ambiguous.BatchId,
			"needs_reconciliation": true,
		})
	case errors.As(err, &postTransfer):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":                err.Error(),
			"batch_id":             postTransfer.BatchId,
			"transfer_id":          postTransfer.TransferId,
			"needs_reconciliation": true,
		})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func getPayoutBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		batchId := c.Param("batchId")
		batch, err := models.GetPayoutBatchByBatchId(config.GetDB().WithContext(c.Request.Context()), batchId)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "payout batch not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		// Non-operators may only see their own batches.
		if isOp, _ := utils.GetIsOperatorFromContext(c.Request.Context()); !isOp {
			userId, _ := utils.GetUserIdFromContext(c.Request.Context())
			if batch.UserId != userId {
				c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"batch": batch})
	}
}

func listPayoutsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.Param("userId")
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		batches, err := models.ListPayoutBatches(config.GetDB().WithContext(c.Request.Context()), userId, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"user_id": userId,
			"batches": batches,
		})
	}
}

func statementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userId := c.Param("userId")
		db := config.GetDB()

		switch c.DefaultQuery("format", "json") {
		case "xlsx":
			stmt, err := reports.GetStatement(c.Request.Context(), db, userId)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			data, err := reports.ExportStatementExcel(stmt)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.Header("Content-Disposition", "attachment; filename=statement.xlsx")
			c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
		case "signed-url":
			url, err := reports.UploadStatement(c.Request.Context(), db, userId)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"url": url})
		default:
			stmt, err := reports.GetStatement(c.Request.Context(), db, userId)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, stmt)
		}
	}
}

func reconcilePayoutsHandler(orchestrator *workflow.PayoutOrchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := workflow.ResolveFlaggedBatches(c.Request.Context(), config.GetDB(), config.GetLogger(), orchestrator.Gateway)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

type outboxReplayRequest struct {
	RecordId int64 `json:"record_id"`
}

// outboxReplayHandler re-queues a DEAD or FAILED payout event for publishing.
func outboxReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req outboxReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if req.RecordId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "record_id is required"})
			return
		}

		db := config.GetDB()
		if db == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "db is nil"})
			return
		}
		now := time.Now().UTC()
		res := db.WithContext(c.Request.Context()).
			Model(&models.PayoutEventRecord{}).
			Where("id = ? AND publish_status IN ?", req.RecordId,
				[]string{models.OutboxPublishStatusDead, models.OutboxPublishStatusFailed}).
			Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusPending,
				"publish_attempts":   0,
				"next_attempt_at":    &now,
				"locked_at":          nil,
				"locked_by":          nil,
				"last_publish_error": nil,
			})
		if res.Error != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": res.Error.Error()})
			return
		}
		if res.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "no replayable record found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"record_id":      req.RecordId,
			"publish_status": models.OutboxPublishStatusPending,
		})
	}
}
