package reporter

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuongbtq/zimage-orchestrator/internal/scheduler"
)

// Snapshot is the progress of a batch at one point in time
type Snapshot struct {
	Total     int
	Submitted int
	Done      int
	Failed    int
	InFlight  int
	Elapsed   time.Duration
}

// Resolved returns how many jobs reached a terminal status
func (s Snapshot) Resolved() int {
	return s.Done + s.Failed
}

// String renders the snapshot for a progress line
func (s Snapshot) String() string {
	percentage := 0.0
	if s.Total > 0 {
		percentage = float64(s.Resolved()) / float64(s.Total) * 100
	}
	return fmt.Sprintf(
		"Progress: %d/%d (%.1f%%) | Done: %d | Failed: %d | In flight: %d | Elapsed: %s",
		s.Resolved(),
		s.Total,
		percentage,
		s.Done,
		s.Failed,
		s.InFlight,
		s.Elapsed.Round(time.Second),
	)
}

// Progress counts transitions and hands a snapshot to a callback after each one
type Progress struct {
	mu       sync.Mutex
	snap     Snapshot
	start    time.Time
	now      func() time.Time
	callback func(Snapshot)
}

// NewProgress creates a new Progress reporter; callback may be nil
func NewProgress(callback func(Snapshot)) *Progress {
	return &Progress{
		start:    time.Now(),
		now:      time.Now,
		callback: callback,
	}
}

// Report updates the counters with ev
func (p *Progress) Report(ev scheduler.Event) {
	p.mu.Lock()
	p.snap.Total = ev.Total
	p.snap.InFlight = ev.InFlight
	switch ev.Kind {
	case scheduler.EventSubmitted:
		p.snap.Submitted++
	case scheduler.EventDone:
		p.snap.Done++
	case scheduler.EventError:
		p.snap.Failed++
	}
	p.snap.Elapsed = p.now().Sub(p.start)
	snap := p.snap
	p.mu.Unlock()

	if p.callback != nil {
		p.callback(snap)
	}
}

// Snapshot returns the current counters
func (p *Progress) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}
