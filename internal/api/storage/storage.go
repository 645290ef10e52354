package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/zimage-orchestrator/internal/api/model"
	"github.com/cuongbtq/zimage-orchestrator/internal/domain"
	"github.com/jmoiron/sqlx"
)

type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{
		db: db,
	}
}

const batchColumns = `
	batch_id, status, jobs, job_count, max_concurrent, worker_id,
	done_count, failed_count, error_message,
	created_at, updated_at, started_at, completed_at`

func (s *Storage) CreateBatch(ctx context.Context, batch *model.Batch) error {
	query := `
		INSERT INTO batches (
			batch_id, status, jobs, job_count, max_concurrent,
			created_at, updated_at
		) VALUES (
			:batch_id, :status, :jobs, :job_count, :max_concurrent,
			:created_at, :updated_at
		)
	`

	if _, err := s.db.NamedExecContext(ctx, query, batch); err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}

	return nil
}

func (s *Storage) GetBatch(ctx context.Context, batchID string) (*model.Batch, error) {
	var batch model.Batch
	query := `SELECT` + batchColumns + `
		FROM batches
		WHERE batch_id = $1
	`

	if err := s.db.GetContext(ctx, &batch, query, batchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBatchNotFound
		}
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}

	return &batch, nil
}

func (s *Storage) ListBatchResults(ctx context.Context, batchID string) ([]model.BatchResult, error) {
	query := `
		SELECT batch_id, seq, prompt, filename_prefix, status, output, url, error_message, created_at
		FROM batch_results
		WHERE batch_id = $1
		ORDER BY seq
	`

	var results []model.BatchResult
	if err := s.db.SelectContext(ctx, &results, query, batchID); err != nil {
		return nil, fmt.Errorf("failed to list batch results: %w", err)
	}

	return results, nil
}

// FailBatch marks a batch that could not be handed to the workers
func (s *Storage) FailBatch(ctx context.Context, batchID, reason string) error {
	query := `
		UPDATE batches
		SET status = $1, error_message = $2, completed_at = NOW(), updated_at = NOW()
		WHERE batch_id = $3 AND status = $4
	`

	if _, err := s.db.ExecContext(ctx, query, domain.BatchStatusFailed, reason, batchID, domain.BatchStatusPending); err != nil {
		return fmt.Errorf("failed to mark batch failed: %w", err)
	}

	return nil
}

type BatchFilter struct {
	Status   string
	PageSize int
	Cursor   *BatchCursor
}

type BatchCursor struct {
	CreatedAt time.Time
	BatchID   string
}

func (s *Storage) ListBatches(ctx context.Context, filter BatchFilter) ([]model.Batch, error) {
	query := `SELECT` + batchColumns + `
		FROM batches
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, batch_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.BatchID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, batch_id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var batches []model.Batch
	if err := s.db.SelectContext(ctx, &batches, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}

	return batches, nil
}
