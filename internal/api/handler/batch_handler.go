package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/zimage-orchestrator/internal/api/dto"
	"github.com/cuongbtq/zimage-orchestrator/internal/api/model"
	"github.com/cuongbtq/zimage-orchestrator/internal/api/storage"
	"github.com/cuongbtq/zimage-orchestrator/internal/batchfile"
	"github.com/cuongbtq/zimage-orchestrator/internal/domain"
	"github.com/cuongbtq/zimage-orchestrator/internal/metrics"
	"github.com/cuongbtq/zimage-orchestrator/internal/workflow"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// encodeMessage serializes the queue message for a batch
var encodeMessage = json.Marshal

var batchStatuses = map[string]bool{
	domain.BatchStatusPending:   true,
	domain.BatchStatusRunning:   true,
	domain.BatchStatusCompleted: true,
	domain.BatchStatusFailed:    true,
}

// CreateBatch handles POST /api/v1/batches
// Stores the batch as PENDING and queues it for a worker
func (h *BatchHandler) CreateBatch(c *gin.Context) {
	var req dto.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	size, err := workflow.ParseSize(req.Size)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	jobs, err := batchfile.Normalize(req.Jobs, size.Width, size.Height)
	if err != nil {
		h.logger.Warn("Invalid batch jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	maxConcurrent := req.MaxConcurrent
	if maxConcurrent == 0 {
		maxConcurrent = h.maxConcurrent
	}

	jobsJSON, err := json.Marshal(jobs)
	if err != nil {
		h.logger.Error("Failed to encode jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create batch",
		})
		return
	}

	now := time.Now().UTC()
	batch := model.Batch{
		BatchID:       uuid.NewString(),
		Status:        domain.BatchStatusPending,
		Jobs:          string(jobsJSON),
		JobCount:      len(jobs),
		MaxConcurrent: maxConcurrent,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	ctx := c.Request.Context()
	if err := h.store.CreateBatch(ctx, &batch); err != nil {
		h.logger.Error("Failed to create batch", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create batch",
		})
		return
	}

	msg, err := encodeMessage(domain.BatchMessage{BatchID: batch.BatchID})
	if err != nil {
		h.logger.Error("Failed to encode batch message",
			slog.String("batch_id", batch.BatchID),
			slog.String("error", err.Error()),
		)
		h.failBatch(c, batch.BatchID, "failed to encode batch message: "+err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":    "Failed to queue batch",
			"batch_id": batch.BatchID,
		})
		return
	}

	if err := h.publisher.Publish(ctx, msg, "application/json"); err != nil {
		h.logger.Error("Failed to queue batch",
			slog.String("batch_id", batch.BatchID),
			slog.String("error", err.Error()),
		)
		h.failBatch(c, batch.BatchID, "failed to queue batch: "+err.Error())
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":    "Failed to queue batch",
			"batch_id": batch.BatchID,
		})
		return
	}

	metrics.IncBatch(domain.BatchStatusPending)
	h.logger.Info("Batch queued",
		slog.String("batch_id", batch.BatchID),
		slog.Int("jobs", batch.JobCount),
		slog.Int("max_concurrent", batch.MaxConcurrent),
	)

	c.JSON(http.StatusAccepted, dto.CreateBatchResponse{
		BatchID:  batch.BatchID,
		Status:   batch.Status,
		JobCount: batch.JobCount,
	})
}

// failBatch marks a stored batch that never reached the queue as FAILED
func (h *BatchHandler) failBatch(c *gin.Context, batchID, reason string) {
	if err := h.store.FailBatch(c.Request.Context(), batchID, reason); err != nil {
		h.logger.Error("Failed to mark batch failed",
			slog.String("batch_id", batchID),
			slog.String("error", err.Error()),
		)
	}
}

// GetBatch handles GET /api/v1/batches/:batch_id
// Returns the batch with its jobs and the results resolved so far
func (h *BatchHandler) GetBatch(c *gin.Context) {
	batchID := c.Param("batch_id")
	if _, err := uuid.Parse(batchID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "batch_id must be a valid UUID",
		})
		return
	}

	ctx := c.Request.Context()
	batch, err := h.store.GetBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, domain.ErrBatchNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Batch not found",
			})
			return
		}
		h.logger.Error("Failed to get batch", slog.String("batch_id", batchID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get batch",
		})
		return
	}

	rows, err := h.store.ListBatchResults(ctx, batchID)
	if err != nil {
		h.logger.Error("Failed to list batch results", slog.String("batch_id", batchID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get batch",
		})
		return
	}

	var jobs []domain.Job
	if err := json.Unmarshal([]byte(batch.Jobs), &jobs); err != nil {
		h.logger.Error("Stored jobs are not valid JSON", slog.String("batch_id", batchID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get batch",
		})
		return
	}

	c.JSON(http.StatusOK, toBatchDTO(batch, jobs, rows))
}

// ListBatches handles GET /api/v1/batches
// Lists batches newest first with an optional status filter
func (h *BatchHandler) ListBatches(c *gin.Context) {
	var req dto.ListBatchesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	req.Status = strings.ToUpper(strings.TrimSpace(req.Status))
	if req.Status != "" && !batchStatuses[req.Status] {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid status filter",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeBatchCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	batches, err := h.store.ListBatches(c.Request.Context(), storage.BatchFilter{
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list batches", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list batches",
		})
		return
	}

	hasMore := len(batches) > req.PageSize
	if hasMore {
		batches = batches[:req.PageSize]
	}

	summaries := make([]dto.BatchSummaryDTO, len(batches))
	for i := range batches {
		summaries[i] = toSummaryDTO(&batches[i])
	}

	var nextCursor string
	if hasMore {
		last := batches[len(batches)-1]
		nextCursor = EncodeBatchCursor(&storage.BatchCursor{
			CreatedAt: last.CreatedAt,
			BatchID:   last.BatchID,
		})
	}

	c.JSON(http.StatusOK, dto.ListBatchesResponse{
		Batches:    summaries,
		NextCursor: nextCursor,
	})
}

func toSummaryDTO(b *model.Batch) dto.BatchSummaryDTO {
	return dto.BatchSummaryDTO{
		BatchID:       b.BatchID,
		Status:        b.Status,
		JobCount:      b.JobCount,
		MaxConcurrent: b.MaxConcurrent,
		DoneCount:     b.DoneCount,
		FailedCount:   b.FailedCount,
		CreatedAt:     b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     b.UpdatedAt.Format(time.RFC3339),
	}
}

func toBatchDTO(b *model.Batch, jobs []domain.Job, rows []model.BatchResult) dto.BatchDTO {
	out := dto.BatchDTO{
		BatchSummaryDTO: toSummaryDTO(b),
		WorkerID:        b.WorkerID.String,
		Error:           b.ErrorMessage.String,
		Jobs:            jobs,
		Results:         make([]domain.Result, len(rows)),
	}
	if b.StartedAt.Valid {
		out.StartedAt = b.StartedAt.Time.Format(time.RFC3339)
	}
	if b.CompletedAt.Valid {
		out.CompletedAt = b.CompletedAt.Time.Format(time.RFC3339)
	}
	if out.Jobs == nil {
		out.Jobs = []domain.Job{}
	}
	for i, r := range rows {
		out.Results[i] = domain.Result{
			Prompt:         r.Prompt,
			FilenamePrefix: r.FilenamePrefix,
			Status:         r.Status,
			Output:         r.Output.String,
			URL:            r.URL.String,
			Error:          r.ErrorMessage.String,
		}
	}
	return out
}
