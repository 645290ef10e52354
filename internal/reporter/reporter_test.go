package reporter

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/cuongbtq/zimage-orchestrator/internal/domain"
	"github.com/cuongbtq/zimage-orchestrator/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleJob() domain.Job {
	return domain.Job{Prompt: "Cat with text \"MEOW\"", FilenamePrefix: "cat", Width: 1024, Height: 1024}
}

func TestProgress_CountsTransitions(t *testing.T) {
	var snaps []Snapshot
	p := NewProgress(func(s Snapshot) { snaps = append(snaps, s) })

	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p.start = clock
	p.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	j := sampleJob()
	p.Report(scheduler.Event{Kind: scheduler.EventSubmitted, Job: j, PromptID: "1", InFlight: 1, Total: 3})
	p.Report(scheduler.Event{Kind: scheduler.EventError, Job: j, InFlight: 1, Total: 3})
	p.Report(scheduler.Event{Kind: scheduler.EventDone, Job: j, PromptID: "1", InFlight: 0, Total: 3})

	require.Len(t, snaps, 3)
	final := p.Snapshot()
	assert.Equal(t, 3, final.Total)
	assert.Equal(t, 1, final.Submitted)
	assert.Equal(t, 1, final.Done)
	assert.Equal(t, 1, final.Failed)
	assert.Equal(t, 2, final.Resolved())
	assert.Equal(t, 3*time.Second, final.Elapsed)
	assert.Equal(t, "Progress: 2/3 (66.7%) | Done: 1 | Failed: 1 | In flight: 0 | Elapsed: 3s", final.String())
}

func TestProgress_NilCallback(t *testing.T) {
	p := NewProgress(nil)
	assert.NotPanics(t, func() {
		p.Report(scheduler.Event{Kind: scheduler.EventDone, Total: 1})
	})
	assert.Equal(t, 1, p.Snapshot().Done)
}

func TestLog_Report(t *testing.T) {
	tests := []struct {
		name      string
		event     scheduler.Event
		wantLevel string
		wantMsg   string
		wantKey   string
		wantValue string
	}{
		{
			name:      "submitted",
			event:     scheduler.Event{Kind: scheduler.EventSubmitted, Job: sampleJob(), PromptID: "abc", InFlight: 1},
			wantLevel: "INFO",
			wantMsg:   "Job submitted",
			wantKey:   "prompt_id",
			wantValue: "abc",
		},
		{
			name: "done",
			event: scheduler.Event{Kind: scheduler.EventDone, Job: sampleJob(), PromptID: "abc",
				Result: domain.DoneResult(sampleJob(), "cat_00001_.png", "http://h/view?filename=cat_00001_.png&type=output")},
			wantLevel: "INFO",
			wantMsg:   "Job done",
			wantKey:   "output",
			wantValue: "cat_00001_.png",
		},
		{
			name:      "error",
			event:     scheduler.Event{Kind: scheduler.EventError, Job: sampleJob(), Result: domain.ErrorResult(sampleJob(), "Submit error: boom")},
			wantLevel: "ERROR",
			wantMsg:   "Job failed",
			wantKey:   "error",
			wantValue: "Submit error: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := &bytes.Buffer{}
			l := NewLog(slog.New(slog.NewJSONHandler(output, nil)))

			l.Report(tt.event)

			var logEntry map[string]interface{}
			require.NoError(t, json.Unmarshal(output.Bytes(), &logEntry))
			assert.Equal(t, tt.wantLevel, logEntry["level"])
			assert.Equal(t, tt.wantMsg, logEntry["msg"])
			assert.Equal(t, tt.wantValue, logEntry[tt.wantKey])
			assert.Equal(t, "cat", logEntry["filename_prefix"])
		})
	}
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", preview("short"))

	long := strings.Repeat("ä", 80)
	got := preview(long)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, promptPreview+3, len([]rune(got)))
}

func TestMulti_FansOut(t *testing.T) {
	var first, second int
	m := Multi{
		scheduler.ReporterFunc(func(scheduler.Event) { first++ }),
		nil,
		scheduler.ReporterFunc(func(scheduler.Event) { second++ }),
	}

	m.Report(scheduler.Event{Kind: scheduler.EventDone})
	m.Report(scheduler.Event{Kind: scheduler.EventError})

	assert.Equal(t, 2, first)
	assert.Equal(t, 2, second)
}
