package reporter

import (
	"github.com/cuongbtq/zimage-orchestrator/internal/metrics"
	"github.com/cuongbtq/zimage-orchestrator/internal/scheduler"
)

// Metrics feeds job transitions into the prometheus collectors
type Metrics struct{}

// NewMetrics creates a new Metrics reporter
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Report counts ev
func (Metrics) Report(ev scheduler.Event) {
	metrics.IncJob(ev.Kind.String())
	switch ev.Kind {
	case scheduler.EventSubmitted:
		metrics.AddInFlight(1)
	case scheduler.EventDone, scheduler.EventError:
		// submission failures never entered the set
		if ev.PromptID != "" {
			metrics.AddInFlight(-1)
		}
	}
}
