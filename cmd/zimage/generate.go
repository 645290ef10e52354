package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cuongbtq/zimage-orchestrator/internal/batchfile"
	"github.com/cuongbtq/zimage-orchestrator/internal/comfyui"
	"github.com/cuongbtq/zimage-orchestrator/internal/domain"
	"github.com/cuongbtq/zimage-orchestrator/internal/reporter"
	"github.com/cuongbtq/zimage-orchestrator/internal/scheduler"
	"github.com/cuongbtq/zimage-orchestrator/internal/workflow"
	"github.com/cuongbtq/zimage-orchestrator/shared/logger"
	"github.com/urfave/cli/v3"
)

type runMode int

const (
	modeNone runMode = iota
	modeSingle
	modeBatch
)

// jobsInput is the part of the command line that decides what to generate
type jobsInput struct {
	Prompt    string
	Output    string
	Size      string
	Seed      *int64
	BatchFile string
	JobsJSON  string
}

var errConflictingModes = errors.New("use only one of a prompt, --batch or --jobs")

// selectJobs resolves the run mode and the jobs it covers
func selectJobs(in jobsInput) ([]domain.Job, runMode, error) {
	modes := 0
	for _, set := range []bool{strings.TrimSpace(in.Prompt) != "", in.BatchFile != "", in.JobsJSON != ""} {
		if set {
			modes++
		}
	}
	if modes == 0 {
		return nil, modeNone, nil
	}
	if modes > 1 {
		return nil, modeNone, errConflictingModes
	}

	size, err := workflow.ParseSize(in.Size)
	if err != nil {
		return nil, modeNone, fmt.Errorf("invalid --size: %w", err)
	}

	switch {
	case in.BatchFile != "":
		jobs, err := batchfile.ReadLinesFile(in.BatchFile, size.Width, size.Height)
		if err != nil {
			return nil, modeNone, err
		}
		return jobs, modeBatch, nil

	case in.JobsJSON != "":
		jobs, err := batchfile.ParseJSON([]byte(in.JobsJSON), size.Width, size.Height)
		if err != nil {
			return nil, modeNone, err
		}
		return jobs, modeBatch, nil
	}

	prefix := strings.TrimSpace(in.Output)
	if prefix == "" {
		prefix = domain.DefaultPrefix
	}
	job := domain.Job{
		Prompt:         strings.TrimSpace(in.Prompt),
		FilenamePrefix: prefix,
		Width:          size.Width,
		Height:         size.Height,
		Seed:           in.Seed,
	}
	return []domain.Job{job}, modeSingle, nil
}

// generateAction runs a single prompt or a batch against the configured server
func generateAction(ctx context.Context, cmd *cli.Command) error {
	in := jobsInput{
		Prompt:    strings.Join(cmd.Args().Slice(), " "),
		Output:    cmd.String("output"),
		Size:      cmd.String("size"),
		BatchFile: cmd.String("batch"),
		JobsJSON:  cmd.String("jobs"),
	}
	if cmd.IsSet("seed") {
		seed := cmd.Int64("seed")
		in.Seed = &seed
	}

	jobs, mode, err := selectJobs(in)
	if err != nil {
		return err
	}
	if mode == modeNone {
		return cli.ShowAppHelp(cmd)
	}

	appLogger, err := logger.New(&logger.Config{
		Level:  cmd.String("log-level"),
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer appLogger.Close()

	client := comfyui.NewClient(comfyui.Options{
		BaseURL: cmd.String("url"),
		Logger:  appLogger.Logger,
	})

	progress := reporter.NewProgress(func(snap reporter.Snapshot) {
		fmt.Fprintln(os.Stderr, snap.String())
	})
	sched := scheduler.New(&scheduler.Config{
		Transport:       client,
		Builder:         workflow.NewBuilder(),
		Reporter:        reporter.Multi{reporter.NewLog(appLogger.Logger), progress},
		Logger:          appLogger.Logger,
		PollInterval:    cmd.Duration("poll-interval"),
		MaxPollFailures: cmd.Int("max-poll-failures"),
	})

	if mode == modeSingle {
		result, ok := sched.RunSingle(ctx, jobs[0])
		if !ok {
			fmt.Fprintf(os.Stderr, "FAILED: %s\n", result.Error)
			return cli.Exit("", 1)
		}
		fmt.Fprintln(os.Stdout, result.URL)
		return nil
	}

	results := sched.RunBatch(ctx, jobs, cmd.Int("concurrent"))
	printSummary(os.Stdout, results, len(jobs))
	return nil
}

// printSummary writes the batch totals followed by one "prefix: url" line per done result
func printSummary(w io.Writer, results []domain.Result, total int) {
	fmt.Fprintf(w, "COMPLETE: %d/%d succeeded\n", domain.CountDone(results), total)
	for _, r := range results {
		if r.Done() {
			fmt.Fprintf(w, "  %s: %s\n", r.FilenamePrefix, r.URL)
		}
	}
}
