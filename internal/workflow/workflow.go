// Package workflow builds the ComfyUI prompt graph for the Z-Image Turbo model.
package workflow

import (
	"time"

	"github.com/cuongbtq/zimage-orchestrator/internal/domain"
)

// Model files referenced by the graph
const (
	UNetName = "z_image_turbo_bf16.safetensors"
	CLIPName = "qwen_3_4b.safetensors"
	VAEName  = "ae.safetensors"
)

// maxSeed keeps derived seeds inside a signed 32-bit range
const maxSeed = 2147483647

// Node is one entry of a ComfyUI prompt graph
type Node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
}

// Workflow is a ComfyUI prompt graph keyed by node id
type Workflow map[string]Node

// SeedSource yields a seed for jobs submitted without one
type SeedSource func() int64

// TimeSeed derives seeds from the wall clock in milliseconds
func TimeSeed(now func() time.Time) SeedSource {
	return func() int64 {
		return now().UnixMilli() % maxSeed
	}
}

// ResolveSeed returns the job seed when present, else one from source
func ResolveSeed(job domain.Job, source SeedSource) int64 {
	if job.Seed != nil {
		return *job.Seed
	}
	return source()
}

// link references output slot of another node
func link(node string, slot int) []any {
	return []any{node, slot}
}

// Build returns the text-to-image graph for job with the resolved seed
func Build(job domain.Job, seed int64) Workflow {
	return Workflow{
		"1": {
			ClassType: "UNETLoader",
			Inputs:    map[string]any{"unet_name": UNetName, "weight_dtype": "default"},
		},
		"2": {
			ClassType: "CLIPLoader",
			Inputs:    map[string]any{"clip_name": CLIPName, "type": "lumina2"},
		},
		"3": {
			ClassType: "VAELoader",
			Inputs:    map[string]any{"vae_name": VAEName},
		},
		"4": {
			ClassType: "CLIPTextEncode",
			Inputs:    map[string]any{"clip": link("2", 0), "text": job.Prompt},
		},
		"5": {
			ClassType: "ConditioningZeroOut",
			Inputs:    map[string]any{"conditioning": link("4", 0)},
		},
		"6": {
			ClassType: "EmptySD3LatentImage",
			Inputs:    map[string]any{"width": job.Width, "height": job.Height, "batch_size": 1},
		},
		"7": {
			ClassType: "KSampler",
			Inputs: map[string]any{
				"model":        link("1", 0),
				"positive":     link("4", 0),
				"negative":     link("5", 0),
				"latent_image": link("6", 0),
				"seed":         seed,
				"steps":        4,
				"cfg":          1.0,
				"sampler_name": "res_multistep",
				"scheduler":    "simple",
				"denoise":      1.0,
			},
		},
		"8": {
			ClassType: "VAEDecode",
			Inputs:    map[string]any{"samples": link("7", 0), "vae": link("3", 0)},
		},
		"9": {
			ClassType: "SaveImage",
			Inputs:    map[string]any{"images": link("8", 0), "filename_prefix": job.FilenamePrefix},
		},
	}
}

// Builder resolves the seed at call time and builds the graph.
// It satisfies the scheduler's request builder contract.
type Builder struct {
	Seeds SeedSource
}

// NewBuilder creates a builder seeded from the wall clock
func NewBuilder() *Builder {
	return &Builder{Seeds: TimeSeed(time.Now)}
}

// Build resolves the seed for job and returns the submission payload
func (b *Builder) Build(job domain.Job) any {
	seeds := b.Seeds
	if seeds == nil {
		seeds = TimeSeed(time.Now)
	}
	return Build(job, ResolveSeed(job, seeds))
}
