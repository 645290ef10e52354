package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/zimage-orchestrator/internal/comfyui"
	"github.com/cuongbtq/zimage-orchestrator/internal/config"
	"github.com/cuongbtq/zimage-orchestrator/internal/metrics"
	"github.com/cuongbtq/zimage-orchestrator/internal/reporter"
	"github.com/cuongbtq/zimage-orchestrator/internal/scheduler"
	"github.com/cuongbtq/zimage-orchestrator/internal/worker"
	"github.com/cuongbtq/zimage-orchestrator/internal/worker/storage"
	"github.com/cuongbtq/zimage-orchestrator/internal/workflow"
	"github.com/cuongbtq/zimage-orchestrator/shared/logger"
	"github.com/cuongbtq/zimage-orchestrator/shared/postgresql"
	"github.com/cuongbtq/zimage-orchestrator/shared/rabbitmq"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(cfg.Logging.LoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	workerID := workerIdentity()
	workerLog := appLogger.With(slog.String("worker_id", workerID)).Logger

	workerLog.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("comfyui", cfg.ComfyUI.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := postgresql.NewClient(ctx, cfg.Database.PostgresConfig(), workerLog)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	rabbitClient, err := rabbitmq.NewClient(ctx, cfg.RabbitMQ.ClientConfig(), workerLog)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	metrics.MustRegister()
	metricsSrv := startMetricsServer(cfg.Worker.MetricsAddr, workerLog)

	client := comfyui.NewClient(comfyui.Options{
		BaseURL: cfg.ComfyUI.BaseURL,
		Timeout: cfg.ComfyUI.Timeout,
		Logger:  workerLog,
	})
	builder := workflow.NewBuilder()

	w := worker.NewWorker(&worker.Config{
		Logger:        workerLog,
		Store:         storage.NewStorage(dbClient.GetDB(), workerLog),
		Consumer:      rabbitClient,
		WorkerID:      workerID,
		Concurrency:   cfg.Worker.Concurrency,
		BatchTimeout:  cfg.Worker.BatchTimeout,
		FinishTimeout: cfg.Worker.ShutdownTimeout,
		NewRunner: func(rep scheduler.Reporter) worker.BatchRunner {
			return scheduler.New(&scheduler.Config{
				Transport:       client,
				Builder:         builder,
				Reporter:        reporter.Multi{reporter.NewLog(workerLog), reporter.NewMetrics(), rep},
				Logger:          workerLog,
				PollInterval:    cfg.Scheduler.PollInterval,
				MaxPollFailures: cfg.Scheduler.MaxPollFailures,
			})
		},
	})

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("worker failed: %w", err)
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			workerLog.Warn("Metrics server shutdown failed", slog.Any("error", err))
		}
	}

	workerLog.Info("Worker service shutdown complete")
	return nil
}

// workerIdentity names this process for batch claims and consumer tags
func workerIdentity() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}

// startMetricsServer serves /metrics on addr; an empty addr disables it
func startMetricsServer(addr string, metricsLog *slog.Logger) *http.Server {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		metricsLog.Info("Starting metrics server", slog.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			metricsLog.Error("Metrics server failed", slog.Any("error", err))
		}
	}()

	return srv
}
