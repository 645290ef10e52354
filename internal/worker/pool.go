package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/zimage-orchestrator/internal/domain"
)

// spawnWorkerPool spawns N goroutines that process dispatched batches
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned",
		slog.Int("worker_count", w.concurrency),
		slog.String("worker_id", w.workerID),
	)
}

// workerLoop processes batches until batchesChan is closed
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	logger := w.logger.With(slog.String("worker_name", workerName))

	for item := range w.batchesChan {
		logger.Info("Worker received batch",
			slog.String("batch_id", item.msg.BatchID),
			slog.Uint64("delivery_tag", item.msg.DeliveryTag),
		)

		err := w.processBatch(ctx, item.msg)
		w.settle(logger, item, err)
	}

	logger.Debug("Worker goroutine stopped")
}

// settle acks a processed batch, or nacks it with a requeue decision
func (w *Worker) settle(logger *slog.Logger, item *batchDelivery, err error) {
	batchID := item.msg.BatchID

	if err == nil {
		if ackErr := item.delivery.Ack(false); ackErr != nil {
			logger.Error("Failed to ACK message",
				slog.String("batch_id", batchID),
				slog.String("error", ackErr.Error()),
			)
		}
		return
	}

	requeue := shouldRequeue(err)
	logger.Error("Batch processing failed",
		slog.String("batch_id", batchID),
		slog.String("error", err.Error()),
		slog.Bool("requeue", requeue),
	)

	if nackErr := item.delivery.Nack(false, requeue); nackErr != nil {
		logger.Error("Failed to NACK message",
			slog.String("batch_id", batchID),
			slog.String("error", nackErr.Error()),
		)
	}
}

// shouldRequeue reports whether a failed delivery may succeed on redelivery
func shouldRequeue(err error) bool {
	if errors.Is(err, domain.ErrBatchAlreadyClaimed) ||
		errors.Is(err, domain.ErrBatchNotFound) ||
		errors.Is(err, domain.ErrInvalidPayload) {
		return false
	}

	var retryableErr *domain.RetryableError
	return errors.As(err, &retryableErr)
}
