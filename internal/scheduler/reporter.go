package scheduler

import "github.com/cuongbtq/zimage-orchestrator/internal/domain"

// EventKind is the kind of state transition a job went through
type EventKind int

const (
	// EventSubmitted is emitted when a job enters the in-flight set
	EventSubmitted EventKind = iota
	// EventDone is emitted when a job resolves with an output
	EventDone
	// EventError is emitted when a job resolves as failed
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventSubmitted:
		return "submitted"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event describes one job transition observed by the loop
type Event struct {
	Kind     EventKind
	Job      domain.Job
	PromptID string
	// Result is set for EventDone and EventError
	Result domain.Result
	// Err is the typed failure for EventError
	Err error
	// InFlight is the in-flight set size after the transition
	InFlight int
	// Total is the number of jobs in the batch
	Total int
}

// Reporter observes job transitions, e.g. for progress display.
// Reporters are called from the loop goroutine only.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter
type ReporterFunc func(Event)

// Report calls f(ev)
func (f ReporterFunc) Report(ev Event) {
	f(ev)
}

type nopReporter struct{}

func (nopReporter) Report(Event) {}
