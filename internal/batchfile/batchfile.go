// Package batchfile reads job lists from the line and JSON batch formats.
package batchfile

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cuongbtq/zimage-orchestrator/internal/domain"
)

// FallbackPrefix names a job that has no explicit prefix
func FallbackPrefix(index int) string {
	return fmt.Sprintf("zimage_%d", index)
}

// ParseLines reads "prefix | prompt" lines. Blank lines and lines starting
// with '#' are skipped; a line without '|' is all prompt and is named after
// its line index.
func ParseLines(r io.Reader, width, height int) ([]domain.Job, error) {
	var jobs []domain.Job
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for i := 0; scanner.Scan(); i++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		job := domain.Job{Width: width, Height: height}
		if name, prompt, ok := strings.Cut(line, "|"); ok {
			job.FilenamePrefix = strings.TrimSpace(name)
			job.Prompt = strings.TrimSpace(prompt)
		} else {
			job.FilenamePrefix = FallbackPrefix(i)
			job.Prompt = line
		}

		if err := job.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		jobs = append(jobs, job)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read batch file: %w", err)
	}

	return jobs, nil
}

// ReadLinesFile opens path and parses it with ParseLines
func ReadLinesFile(path string, width, height int) ([]domain.Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open batch file: %w", err)
	}
	defer f.Close()

	return ParseLines(f, width, height)
}

// Entry is one record of the JSON batch format
type Entry struct {
	Prompt         string `json:"prompt"`
	FilenamePrefix string `json:"filename_prefix"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Seed           *int64 `json:"seed"`
}

// ToJob normalizes the entry at index into a job
func (e Entry) ToJob(index, width, height int) (domain.Job, error) {
	job := domain.Job{
		Prompt:         strings.TrimSpace(e.Prompt),
		FilenamePrefix: strings.TrimSpace(e.FilenamePrefix),
		Width:          e.Width,
		Height:         e.Height,
		Seed:           e.Seed,
	}
	if job.FilenamePrefix == "" {
		job.FilenamePrefix = FallbackPrefix(index)
	}
	if job.Width == 0 {
		job.Width = width
	}
	if job.Height == 0 {
		job.Height = height
	}
	if err := job.Validate(); err != nil {
		return domain.Job{}, fmt.Errorf("job %d: %w", index, err)
	}
	return job, nil
}

// ParseJSON reads an array of entries, filling missing sizes with width and height
func ParseJSON(data []byte, width, height int) ([]domain.Job, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return Normalize(entries, width, height)
}

// Normalize converts entries into jobs
func Normalize(entries []Entry, width, height int) ([]domain.Job, error) {
	jobs := make([]domain.Job, 0, len(entries))
	for i, e := range entries {
		job, err := e.ToJob(i, width, height)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
