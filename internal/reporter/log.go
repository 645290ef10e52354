// Package reporter holds observers of scheduler job transitions.
package reporter

import (
	"log/slog"

	"github.com/cuongbtq/zimage-orchestrator/internal/scheduler"
)

// promptPreview bounds how much of a prompt is logged on submission
const promptPreview = 50

// Log writes one structured line per job transition
type Log struct {
	logger *slog.Logger
}

// NewLog creates a new Log reporter
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

// Report logs ev
func (l *Log) Report(ev scheduler.Event) {
	switch ev.Kind {
	case scheduler.EventSubmitted:
		l.logger.Info("Job submitted",
			slog.String("filename_prefix", ev.Job.FilenamePrefix),
			slog.String("prompt_id", ev.PromptID),
			slog.String("prompt", preview(ev.Job.Prompt)),
			slog.Int("in_flight", ev.InFlight),
		)
	case scheduler.EventDone:
		l.logger.Info("Job done",
			slog.String("filename_prefix", ev.Job.FilenamePrefix),
			slog.String("prompt_id", ev.PromptID),
			slog.String("output", ev.Result.Output),
			slog.String("url", ev.Result.URL),
		)
	case scheduler.EventError:
		l.logger.Error("Job failed",
			slog.String("filename_prefix", ev.Job.FilenamePrefix),
			slog.String("prompt_id", ev.PromptID),
			slog.String("error", ev.Result.Error),
		)
	}
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= promptPreview {
		return s
	}
	return string(r[:promptPreview]) + "..."
}
