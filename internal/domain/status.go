package domain

// State is the classification of one poll response
type State int

const (
	// StatePending means the server does not know the prompt yet
	StatePending State = iota
	// StateRunning means the prompt is known and has no outputs or error
	StateRunning
	// StateDone means at least one output image is present
	StateDone
	// StateError means the server reported an execution error
	StateError
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can occur
func (s State) Terminal() bool {
	return s == StateDone || s == StateError
}

// Status is the interpreted poll response for one prompt id
type Status struct {
	State   State
	Output  string // first output filename, StateDone only
	Message string // diagnostic, StateError only
	// Err is set when the poll itself failed; State is StatePending in that case
	Err error
}

// Pending returns a pending status, optionally carrying the transient failure
func Pending(err error) Status {
	if err != nil {
		err = &TransientPollError{Err: err}
	}
	return Status{State: StatePending, Err: err}
}
