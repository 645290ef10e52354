package model

import (
	"database/sql"
	"time"
)

// Batch is a row of the batches table
type Batch struct {
	BatchID       string         `db:"batch_id"`
	Status        string         `db:"status"`
	Jobs          string         `db:"jobs"`
	JobCount      int            `db:"job_count"`
	MaxConcurrent int            `db:"max_concurrent"`
	WorkerID      sql.NullString `db:"worker_id"`
	DoneCount     int            `db:"done_count"`
	FailedCount   int            `db:"failed_count"`
	ErrorMessage  sql.NullString `db:"error_message"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
	StartedAt     sql.NullTime   `db:"started_at"`
	CompletedAt   sql.NullTime   `db:"completed_at"`
}

// BatchResult is a row of the batch_results table; Seq is the resolution order
type BatchResult struct {
	BatchID        string         `db:"batch_id"`
	Seq            int            `db:"seq"`
	Prompt         string         `db:"prompt"`
	FilenamePrefix string         `db:"filename_prefix"`
	Status         string         `db:"status"`
	Output         sql.NullString `db:"output"`
	URL            sql.NullString `db:"url"`
	ErrorMessage   sql.NullString `db:"error_message"`
	CreatedAt      time.Time      `db:"created_at"`
}
