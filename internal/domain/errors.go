package domain

import "errors"

var (
	// ErrInvalidJob is returned when a job fails validation
	ErrInvalidJob = errors.New("invalid job")

	// ErrMissingPromptID is returned when the server accepts a prompt without an id
	ErrMissingPromptID = errors.New("missing prompt_id")

	// ErrBatchNotFound is returned when a batch cannot be found in the database
	ErrBatchNotFound = errors.New("batch not found")

	// ErrBatchAlreadyClaimed is returned when a batch is not in PENDING status anymore
	ErrBatchAlreadyClaimed = errors.New("batch already claimed or not in PENDING status")

	// ErrInvalidPayload is returned when a batch message or jobs JSON is malformed
	ErrInvalidPayload = errors.New("invalid batch payload")
)

// SubmissionError is a terminal failure at submit time
type SubmissionError struct {
	Message string
	Err     error
}

func (e *SubmissionError) Error() string {
	return e.Message
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// ExecutionError is a runtime failure reported by the server for an accepted prompt
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string {
	return e.Message
}

// TransientPollError wraps a failure while checking status; it is never terminal
type TransientPollError struct {
	Err error
}

func (e *TransientPollError) Error() string {
	return "transient poll error: " + e.Err.Error()
}

func (e *TransientPollError) Unwrap() error {
	return e.Err
}

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
