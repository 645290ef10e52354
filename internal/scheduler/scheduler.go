// Package scheduler drives a batch of jobs through a remote submit/poll API
// with a bounded number of jobs in flight.
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cuongbtq/zimage-orchestrator/internal/domain"
	"golang.org/x/sync/errgroup"
)

// DefaultPollInterval is the wait between poll cycles
const DefaultPollInterval = time.Second

// Transport submits payloads and reports their status
type Transport interface {
	// Submit returns the server-issued id, or an error describing why submission failed
	Submit(ctx context.Context, payload any) (string, error)
	// Poll never fails; transport problems come back as pending with Err set
	Poll(ctx context.Context, promptID string) domain.Status
	// OutputURL derives the access URL of an output reference
	OutputURL(output string) string
}

// RequestBuilder turns a job into an opaque submission payload.
// Seed resolution happens inside Build, once per submission.
type RequestBuilder interface {
	Build(job domain.Job) any
}

// Config holds scheduler configuration
type Config struct {
	Transport Transport
	Builder   RequestBuilder
	Reporter  Reporter
	Logger    *slog.Logger
	// PollInterval defaults to DefaultPollInterval when not positive
	PollInterval time.Duration
	// MaxPollFailures resolves a job as error after that many consecutive
	// transient poll failures. Zero keeps polling forever.
	MaxPollFailures int
}

// Scheduler runs batches. A Scheduler holds no batch state, so one value may
// run several batches concurrently; each RunBatch owns its own queue and set.
type Scheduler struct {
	transport       Transport
	builder         RequestBuilder
	reporter        Reporter
	logger          *slog.Logger
	pollInterval    time.Duration
	maxPollFailures int
}

// New creates a new Scheduler
func New(cfg *Config) *Scheduler {
	s := &Scheduler{
		transport:       cfg.Transport,
		builder:         cfg.Builder,
		reporter:        cfg.Reporter,
		logger:          cfg.Logger,
		pollInterval:    cfg.PollInterval,
		maxPollFailures: cfg.MaxPollFailures,
	}
	if s.reporter == nil {
		s.reporter = nopReporter{}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.pollInterval <= 0 {
		s.pollInterval = DefaultPollInterval
	}
	if s.maxPollFailures < 0 {
		s.maxPollFailures = 0
	}
	return s
}

// batchRun is the state of one RunBatch call
type batchRun struct {
	queue    *jobQueue
	inFlight *inFlightSet
	results  []domain.Result
	total    int
}

// RunBatch processes jobs with at most maxConcurrent in flight and returns
// exactly one Result per job, in the order the jobs resolved.
func (s *Scheduler) RunBatch(ctx context.Context, jobs []domain.Job, maxConcurrent int) []domain.Result {
	if len(jobs) == 0 {
		return []domain.Result{}
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	run := &batchRun{
		queue:    newJobQueue(jobs),
		inFlight: newInFlightSet(maxConcurrent),
		results:  make([]domain.Result, 0, len(jobs)),
		total:    len(jobs),
	}

	s.logger.Info("Batch started",
		slog.Int("jobs", run.total),
		slog.Int("max_concurrent", maxConcurrent),
		slog.Duration("poll_interval", s.pollInterval),
	)

	for run.queue.Len() > 0 || run.inFlight.Len() > 0 {
		if err := ctx.Err(); err != nil {
			s.abandon(run, err)
			break
		}

		s.admit(ctx, run, maxConcurrent)

		if run.inFlight.Len() == 0 {
			continue
		}
		if err := s.wait(ctx); err != nil {
			continue
		}
		s.pollCycle(ctx, run)
	}

	s.logger.Info("Batch finished",
		slog.Int("jobs", run.total),
		slog.Int("done", domain.CountDone(run.results)),
		slog.Int("failed", len(run.results)-domain.CountDone(run.results)),
	)

	return run.results
}

// RunSingle runs one job and reports whether it produced a done result
func (s *Scheduler) RunSingle(ctx context.Context, job domain.Job) (domain.Result, bool) {
	results := s.RunBatch(ctx, []domain.Job{job}, 1)
	if len(results) == 0 {
		return domain.Result{}, false
	}
	return results[0], results[0].Done()
}

// admit submits queued jobs in FIFO order while there is capacity.
// Jobs left queued once ctx is done are resolved by abandon.
func (s *Scheduler) admit(ctx context.Context, run *batchRun, maxConcurrent int) {
	for ctx.Err() == nil && run.queue.Len() > 0 && run.inFlight.Len() < maxConcurrent {
		job := run.queue.Pop()
		payload := s.builder.Build(job)

		promptID, err := s.transport.Submit(ctx, payload)
		if err == nil && run.inFlight.Contains(promptID) {
			err = &domain.SubmissionError{Message: fmt.Sprintf("Submit error: duplicate prompt_id %s", promptID)}
		}
		if err != nil {
			s.resolve(run, Event{Kind: EventError, Job: job, Err: err}, domain.ErrorResult(job, err.Error()))
			continue
		}

		run.inFlight.Add(&domain.SubmissionHandle{PromptID: promptID, Job: job})
		s.reporter.Report(Event{
			Kind:     EventSubmitted,
			Job:      job,
			PromptID: promptID,
			InFlight: run.inFlight.Len(),
			Total:    run.total,
		})
	}
}

// wait blocks for one poll interval or until ctx is done
func (s *Scheduler) wait(ctx context.Context) error {
	timer := time.NewTimer(s.pollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// pollCycle polls every in-flight job concurrently, then merges the outcomes
func (s *Scheduler) pollCycle(ctx context.Context, run *batchRun) {
	handles := run.inFlight.Handles()
	statuses := make([]domain.Status, len(handles))

	var g errgroup.Group
	g.SetLimit(len(handles))
	for i, h := range handles {
		g.Go(func() error {
			statuses[i] = s.transport.Poll(ctx, h.PromptID)
			return nil
		})
	}
	_ = g.Wait()

	for i, h := range handles {
		st := statuses[i]
		switch st.State {
		case domain.StateDone:
			run.inFlight.Remove(h.PromptID)
			result := domain.DoneResult(h.Job, st.Output, s.transport.OutputURL(st.Output))
			s.resolve(run, Event{Kind: EventDone, Job: h.Job, PromptID: h.PromptID}, result)

		case domain.StateError:
			run.inFlight.Remove(h.PromptID)
			message := st.Message
			if message == "" {
				message = domain.ResultError
			}
			err := &domain.ExecutionError{Message: message}
			s.resolve(run, Event{Kind: EventError, Job: h.Job, PromptID: h.PromptID, Err: err}, domain.ErrorResult(h.Job, err.Error()))

		default:
			if st.Err == nil {
				h.PollFailures = 0
				continue
			}
			// failures caused by cancellation are left to abandon
			if ctx.Err() != nil {
				continue
			}
			h.PollFailures++
			s.logger.Warn("Poll failed, will retry",
				slog.String("prompt_id", h.PromptID),
				slog.String("filename_prefix", h.Job.FilenamePrefix),
				slog.Int("consecutive_failures", h.PollFailures),
				slog.String("error", st.Err.Error()),
			)
			if s.maxPollFailures > 0 && h.PollFailures >= s.maxPollFailures {
				run.inFlight.Remove(h.PromptID)
				err := fmt.Errorf("poll failed %d consecutive times: %w", h.PollFailures, st.Err)
				s.resolve(run, Event{Kind: EventError, Job: h.Job, PromptID: h.PromptID, Err: err}, domain.ErrorResult(h.Job, err.Error()))
			}
		}
	}
}

// abandon resolves every remaining job as failed once ctx is done
func (s *Scheduler) abandon(run *batchRun, cause error) {
	s.logger.Warn("Batch interrupted, resolving remaining jobs as failed",
		slog.Int("queued", run.queue.Len()),
		slog.Int("in_flight", run.inFlight.Len()),
		slog.String("error", cause.Error()),
	)

	err := fmt.Errorf("canceled: %w", cause)
	for _, h := range run.inFlight.Handles() {
		run.inFlight.Remove(h.PromptID)
		s.resolve(run, Event{Kind: EventError, Job: h.Job, PromptID: h.PromptID, Err: err}, domain.ErrorResult(h.Job, err.Error()))
	}
	for _, job := range run.queue.Drain() {
		s.resolve(run, Event{Kind: EventError, Job: job, Err: err}, domain.ErrorResult(job, err.Error()))
	}
}

// resolve records the terminal result of a job and reports it
func (s *Scheduler) resolve(run *batchRun, ev Event, result domain.Result) {
	run.results = append(run.results, result)
	ev.Result = result
	ev.InFlight = run.inFlight.Len()
	ev.Total = run.total
	s.reporter.Report(ev)
}
