package reporter

import "github.com/cuongbtq/zimage-orchestrator/internal/scheduler"

// Multi fans each event out to several reporters in order
type Multi []scheduler.Reporter

// Report forwards ev to every non-nil reporter
func (m Multi) Report(ev scheduler.Event) {
	for _, r := range m {
		if r != nil {
			r.Report(ev)
		}
	}
}
