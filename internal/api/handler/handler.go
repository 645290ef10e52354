package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/zimage-orchestrator/internal/api/model"
	"github.com/cuongbtq/zimage-orchestrator/internal/api/storage"
)

// BatchStore persists batches and reads back their results
type BatchStore interface {
	CreateBatch(ctx context.Context, batch *model.Batch) error
	GetBatch(ctx context.Context, batchID string) (*model.Batch, error)
	ListBatchResults(ctx context.Context, batchID string) ([]model.BatchResult, error)
	ListBatches(ctx context.Context, filter storage.BatchFilter) ([]model.Batch, error)
	FailBatch(ctx context.Context, batchID, reason string) error
}

// Publisher hands a message to the worker queue
type Publisher interface {
	Publish(ctx context.Context, body []byte, contentType string) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger        *slog.Logger
	Store         BatchStore
	Publisher     Publisher
	MaxConcurrent int
	ServiceName   string
	// HealthCheck reports backing store health; nil means always healthy
	HealthCheck func(ctx context.Context) error
}

// BatchHandler handles batch-related HTTP requests
type BatchHandler struct {
	logger        *slog.Logger
	store         BatchStore
	publisher     Publisher
	maxConcurrent int
}

// NewBatchHandler creates a new BatchHandler instance
func NewBatchHandler(deps *Dependencies) *BatchHandler {
	return &BatchHandler{
		logger:        deps.Logger,
		store:         deps.Store,
		publisher:     deps.Publisher,
		maxConcurrent: deps.MaxConcurrent,
	}
}
