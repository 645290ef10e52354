package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/zimage-orchestrator/internal/domain"
	"github.com/cuongbtq/zimage-orchestrator/internal/scheduler"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Consumer delivers batch messages from the broker
type Consumer interface {
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
	Cancel(consumerTag string) error
}

// BatchStore claims batches and records their outcome
type BatchStore interface {
	ClaimBatch(ctx context.Context, batchID, workerID string) (*domain.Batch, error)
	SaveResult(ctx context.Context, batchID string, seq int, result domain.Result) error
	FinishBatch(ctx context.Context, batchID string, outcome Outcome) error
}

// BatchRunner runs the jobs of one batch to completion
type BatchRunner interface {
	RunBatch(ctx context.Context, jobs []domain.Job, maxConcurrent int) []domain.Result
}

// RunnerFactory builds a runner that reports transitions to rep
type RunnerFactory func(rep scheduler.Reporter) BatchRunner

// Outcome is the terminal state of a batch
type Outcome struct {
	Status      string
	DoneCount   int
	FailedCount int
	Error       string
}

// Config holds worker configuration
type Config struct {
	Logger       *slog.Logger
	Store        BatchStore
	Consumer     Consumer
	NewRunner    RunnerFactory
	WorkerID     string
	Concurrency  int
	BatchTimeout time.Duration
	// FinishTimeout bounds the final status write, which outlives shutdown
	FinishTimeout time.Duration
}

// Worker consumes batch messages and runs each batch against the generation server
type Worker struct {
	logger        *slog.Logger
	store         BatchStore
	consumer      Consumer
	newRunner     RunnerFactory
	workerID      string
	concurrency   int
	batchTimeout  time.Duration
	finishTimeout time.Duration
	batchesChan   chan *batchDelivery
	wg            sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	finishTimeout := cfg.FinishTimeout
	if finishTimeout <= 0 {
		finishTimeout = 10 * time.Second
	}
	return &Worker{
		logger:        cfg.Logger,
		store:         cfg.Store,
		consumer:      cfg.Consumer,
		newRunner:     cfg.NewRunner,
		workerID:      cfg.WorkerID,
		concurrency:   concurrency,
		batchTimeout:  cfg.BatchTimeout,
		finishTimeout: finishTimeout,
		batchesChan:   make(chan *batchDelivery),
	}
}

// Start consumes batches until ctx is canceled, then waits for the pool to drain
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("batch_timeout", w.batchTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)
	w.startMessageDispatcher(ctx, deliveries)

	if err := w.consumer.Cancel(w.workerID); err != nil {
		w.logger.Warn("Failed to cancel consumer", slog.String("error", err.Error()))
	}

	close(w.batchesChan)
	w.wg.Wait()

	w.logger.Info("Worker stopped", slog.String("worker_id", w.workerID))
	return nil
}
