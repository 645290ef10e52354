package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/zimage-orchestrator/internal/domain"
	"github.com/cuongbtq/zimage-orchestrator/internal/metrics"
	"github.com/cuongbtq/zimage-orchestrator/internal/scheduler"
)

// processBatch claims a batch, runs its jobs and records the outcome.
// A nil return means the message can be acked.
func (w *Worker) processBatch(ctx context.Context, msg domain.BatchMessage) error {
	batch, err := w.store.ClaimBatch(ctx, msg.BatchID, w.workerID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrBatchAlreadyClaimed):
			w.logger.Warn("Batch already claimed, skipping", slog.String("batch_id", msg.BatchID))
			return err
		case errors.Is(err, domain.ErrInvalidPayload):
			w.finish(ctx, msg.BatchID, Outcome{Status: domain.BatchStatusFailed, Error: err.Error()})
			return err
		default:
			return domain.NewRetryableError(fmt.Errorf("failed to claim batch: %w", err))
		}
	}

	runCtx := ctx
	if w.batchTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.batchTimeout)
		defer cancel()
	}

	recorder := newResultRecorder(ctx, w.store, batch.BatchID, w.finishTimeout, w.logger)
	runner := w.newRunner(recorder)

	results := runner.RunBatch(runCtx, batch.Jobs, batch.MaxConcurrent)

	outcome := Outcome{
		Status:      domain.BatchStatusCompleted,
		DoneCount:   domain.CountDone(results),
		FailedCount: len(results) - domain.CountDone(results),
	}
	if err := runCtx.Err(); err != nil && outcome.FailedCount > 0 {
		outcome.Status = domain.BatchStatusFailed
		outcome.Error = fmt.Sprintf("batch interrupted: %v", err)
	}
	if err := recorder.Err(); err != nil {
		outcome.Status = domain.BatchStatusFailed
		outcome.Error = fmt.Sprintf("failed to persist results: %v", err)
	}

	w.finish(ctx, batch.BatchID, outcome)

	w.logger.Info("Batch finished",
		slog.String("batch_id", batch.BatchID),
		slog.String("status", outcome.Status),
		slog.Int("done", outcome.DoneCount),
		slog.Int("failed", outcome.FailedCount),
	)

	return nil
}

// finish writes the terminal batch status even when ctx is already canceled
func (w *Worker) finish(ctx context.Context, batchID string, outcome Outcome) {
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.finishTimeout)
	defer cancel()

	if err := w.store.FinishBatch(finishCtx, batchID, outcome); err != nil {
		w.logger.Error("Failed to record batch outcome",
			slog.String("batch_id", batchID),
			slog.String("status", outcome.Status),
			slog.String("error", err.Error()),
		)
	}
	metrics.IncBatch(outcome.Status)
}

// resultRecorder persists every terminal job result as it is reported.
// The scheduler reports from a single goroutine, so seq needs no lock.
type resultRecorder struct {
	ctx     context.Context
	store   BatchStore
	batchID string
	timeout time.Duration
	logger  *slog.Logger
	seq     int
	err     error
}

func newResultRecorder(ctx context.Context, store BatchStore, batchID string, timeout time.Duration, logger *slog.Logger) *resultRecorder {
	return &resultRecorder{
		ctx:     context.WithoutCancel(ctx),
		store:   store,
		batchID: batchID,
		timeout: timeout,
		logger:  logger,
	}
}

// Report saves done and error results; submissions are ignored
func (r *resultRecorder) Report(ev scheduler.Event) {
	if ev.Kind == scheduler.EventSubmitted {
		return
	}

	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	seq := r.seq
	r.seq++
	if err := r.store.SaveResult(ctx, r.batchID, seq, ev.Result); err != nil {
		r.logger.Error("Failed to save job result",
			slog.String("batch_id", r.batchID),
			slog.Int("seq", seq),
			slog.String("error", err.Error()),
		)
		if r.err == nil {
			r.err = err
		}
	}
}

// Err returns the first save failure
func (r *resultRecorder) Err() error {
	return r.err
}
