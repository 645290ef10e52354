package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/zimage-orchestrator/internal/domain"
	"github.com/cuongbtq/zimage-orchestrator/internal/worker"
	"github.com/cuongbtq/zimage-orchestrator/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

// Storage handles all database operations for the worker
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

type claimedRow struct {
	BatchID       string    `db:"batch_id"`
	Jobs          string    `db:"jobs"`
	MaxConcurrent int       `db:"max_concurrent"`
	CreatedAt     time.Time `db:"created_at"`
}

// ClaimBatch moves a batch from PENDING to RUNNING using optimistic locking.
// Returns ErrBatchAlreadyClaimed when no PENDING row matched.
func (s *Storage) ClaimBatch(ctx context.Context, batchID, workerID string) (*domain.Batch, error) {
	query := `
		UPDATE batches
		SET status = $1,
		    worker_id = $2,
		    started_at = NOW(),
		    updated_at = NOW()
		WHERE batch_id = $3
		  AND status = $4
		RETURNING batch_id, jobs, max_concurrent, created_at
	`

	var row claimedRow
	err := s.db.QueryRowxContext(ctx, query, domain.BatchStatusRunning, workerID, batchID, domain.BatchStatusPending).StructScan(&row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBatchAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim batch: %w", err)
	}

	var jobs []domain.Job
	if err := json.Unmarshal([]byte(row.Jobs), &jobs); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	for i, job := range jobs {
		if err := job.Validate(); err != nil {
			return nil, fmt.Errorf("%w: job %d: %v", domain.ErrInvalidPayload, i, err)
		}
	}

	s.logger.Info("Batch claimed",
		slog.String("batch_id", batchID),
		slog.String("worker_id", workerID),
		slog.Int("jobs", len(jobs)),
	)

	return &domain.Batch{
		BatchID:       row.BatchID,
		Status:        domain.BatchStatusRunning,
		Jobs:          jobs,
		MaxConcurrent: row.MaxConcurrent,
		WorkerID:      workerID,
		CreatedAt:     row.CreatedAt,
	}, nil
}

// SaveResult stores the result resolved in position seq and bumps the batch counters
func (s *Storage) SaveResult(ctx context.Context, batchID string, seq int, result domain.Result) error {
	insert := `
		INSERT INTO batch_results (
			batch_id, seq, prompt, filename_prefix, status, output, url, error_message
		) VALUES (
			$1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, '')
		)
		ON CONFLICT (batch_id, seq) DO NOTHING
	`
	counters := `
		UPDATE batches
		SET done_count = done_count + $1,
		    failed_count = failed_count + $2,
		    updated_at = NOW()
		WHERE batch_id = $3
	`

	done, failed := 0, 1
	if result.Done() {
		done, failed = 1, 0
	}

	return postgresql.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, insert,
			batchID, seq, result.Prompt, result.FilenamePrefix, result.Status,
			result.Output, result.URL, result.Error,
		)
		if err != nil {
			return fmt.Errorf("failed to save result: %w", err)
		}
		// a redelivered result is already counted
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, counters, done, failed, batchID); err != nil {
			return fmt.Errorf("failed to update batch counters: %w", err)
		}
		return nil
	})
}

// FinishBatch records the terminal status of a batch
func (s *Storage) FinishBatch(ctx context.Context, batchID string, outcome worker.Outcome) error {
	query := `
		UPDATE batches
		SET status = $1,
		    done_count = $2,
		    failed_count = $3,
		    error_message = NULLIF($4, ''),
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE batch_id = $5
	`

	_, err := s.db.ExecContext(ctx, query, outcome.Status, outcome.DoneCount, outcome.FailedCount, outcome.Error, batchID)
	if err != nil {
		return fmt.Errorf("failed to finish batch: %w", err)
	}

	s.logger.Info("Batch status updated",
		slog.String("batch_id", batchID),
		slog.String("status", outcome.Status),
	)

	return nil
}
