package dto

import (
	"github.com/cuongbtq/zimage-orchestrator/internal/batchfile"
	"github.com/cuongbtq/zimage-orchestrator/internal/domain"
)

type CreateBatchRequest struct {
	Jobs          []batchfile.Entry `json:"jobs" binding:"required,min=1"`
	Size          string            `json:"size"`
	MaxConcurrent int               `json:"max_concurrent" binding:"omitempty,min=1,max=64"`
}

type CreateBatchResponse struct {
	BatchID  string `json:"batch_id"`
	Status   string `json:"status"`
	JobCount int    `json:"job_count"`
}

type ListBatchesRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListBatchesResponse struct {
	Batches    []BatchSummaryDTO `json:"batches"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type BatchSummaryDTO struct {
	BatchID       string `json:"batch_id"`
	Status        string `json:"status"`
	JobCount      int    `json:"job_count"`
	MaxConcurrent int    `json:"max_concurrent"`
	DoneCount     int    `json:"done_count"`
	FailedCount   int    `json:"failed_count"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type BatchDTO struct {
	BatchSummaryDTO
	WorkerID    string          `json:"worker_id,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   string          `json:"started_at,omitempty"`
	CompletedAt string          `json:"completed_at,omitempty"`
	Jobs        []domain.Job    `json:"jobs"`
	Results     []domain.Result `json:"results"`
}
