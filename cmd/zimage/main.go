package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cuongbtq/zimage-orchestrator/internal/comfyui"
	"github.com/cuongbtq/zimage-orchestrator/internal/domain"
	"github.com/cuongbtq/zimage-orchestrator/internal/scheduler"
	"github.com/cuongbtq/zimage-orchestrator/internal/workflow"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:      "zimage",
		Usage:     "Generate images with Z-Image Turbo on a ComfyUI server",
		ArgsUsage: "[prompt]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "filename prefix for a single prompt",
				Value:   domain.DefaultPrefix,
			},
			&cli.StringFlag{
				Name:    "size",
				Aliases: []string{"s"},
				Usage:   "WxH or one of: " + strings.Join(workflow.PresetNames(), ", "),
				Value:   "square",
			},
			&cli.Int64Flag{
				Name:  "seed",
				Usage: "fixed seed, derived from the clock when unset",
			},
			&cli.StringFlag{
				Name:  "batch",
				Usage: "file with one prompt per line, optionally \"prefix | prompt\"",
			},
			&cli.StringFlag{
				Name:  "jobs",
				Usage: "JSON array of {prompt, filename_prefix, width, height, seed}",
			},
			&cli.IntFlag{
				Name:    "concurrent",
				Aliases: []string{"c"},
				Usage:   "maximum jobs in flight",
				Value:   4,
			},
			&cli.StringFlag{
				Name:    "url",
				Usage:   "ComfyUI server address",
				Value:   comfyui.DefaultBaseURL,
				Sources: cli.EnvVars("COMFYUI_URL"),
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Usage: "wait between status polls",
				Value: scheduler.DefaultPollInterval,
			},
			&cli.IntFlag{
				Name:  "max-poll-failures",
				Usage: "fail a job after this many consecutive poll errors, 0 retries forever",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error",
				Value:   "info",
				Sources: cli.EnvVars("ZIMAGE_LOG_LEVEL"),
			},
		},
		Action: generateAction,
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
