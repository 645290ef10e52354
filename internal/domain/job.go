package domain

import (
	"fmt"
	"strings"
)

const (
	// DefaultWidth is used when a job does not specify a width
	DefaultWidth = 1024
	// DefaultHeight is used when a job does not specify a height
	DefaultHeight = 1024
	// DefaultPrefix is the filename prefix for single-prompt runs
	DefaultPrefix = "zimage"
)

// Job is one requested generation task
type Job struct {
	Prompt         string `json:"prompt"`
	FilenamePrefix string `json:"filename_prefix"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	// Seed is nil when the seed should be derived at submission time
	Seed *int64 `json:"seed,omitempty"`
}

// Validate checks the job attributes
func (j Job) Validate() error {
	if strings.TrimSpace(j.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidJob)
	}
	if j.Width <= 0 || j.Height <= 0 {
		return fmt.Errorf("%w: size must be positive, got %dx%d", ErrInvalidJob, j.Width, j.Height)
	}
	return nil
}

// SubmissionHandle pairs a server-issued prompt id with the job it was issued for
type SubmissionHandle struct {
	PromptID string
	Job      Job
	// PollFailures counts consecutive transient poll failures
	PollFailures int
}
