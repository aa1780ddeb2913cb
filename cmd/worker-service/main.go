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

	"github.com/cuongbtq/story-factory/internal/bootstrap"
	"github.com/cuongbtq/story-factory/internal/config"
	"github.com/cuongbtq/story-factory/internal/domain"
	"github.com/cuongbtq/story-factory/internal/metrics"
	"github.com/cuongbtq/story-factory/internal/notify"
	"github.com/cuongbtq/story-factory/internal/worker"
	"github.com/cuongbtq/story-factory/internal/worker/storage"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to configuration file (default $WORKER_SERVICE_CONFIG_PATH or configs/worker-service.yaml)")
	stageFlag := flag.String("stage", "", "Pipeline stage to run: script, asset or video (overrides worker.stage)")
	flag.Parse()

	cfg, err := bootstrap.LoadConfig(*configPath, "WORKER_SERVICE_CONFIG_PATH", "configs/worker-service.yaml")
	if err != nil {
		return err
	}

	if *stageFlag != "" {
		cfg.Worker.Stage = *stageFlag
	}
	stage, ok := domain.ParseStage(cfg.Worker.Stage)
	if !ok {
		return fmt.Errorf("unknown stage %q (want script, asset or video)", cfg.Worker.Stage)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.ValidateStageProviders(string(stage)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	workerID := cfg.Worker.ID
	if workerID == "" {
		workerID = defaultWorkerID(stage)
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()
	appLogger = appLogger.With(slog.String("service", "worker"))

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("stage", string(stage)),
		slog.String("worker_id", workerID),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dbClient, err := bootstrap.InitPostgreSQL(ctx, &cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		appLogger.Info("Closing database", slog.String("pool", dbClient.Stats()))
		dbClient.Close()
	}()

	appLogger.Info("Database connection established")

	processor, closeProcessor, err := buildProcessor(ctx, stage, cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize %s stage: %w", stage, err)
	}
	defer closeProcessor()

	workerCfg := &worker.Config{
		Logger:            appLogger.Logger,
		Store:             storage.NewStorage(dbClient.GetDB(), appLogger.Logger),
		Processor:         processor,
		WorkerID:          workerID,
		IdleInterval:      cfg.Worker.IdleInterval,
		ErrorInterval:     cfg.Worker.ErrorInterval,
		LeaseDuration:     cfg.Worker.LeaseDuration,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
		JobTimeout:        cfg.Worker.JobTimeout,
	}

	if cfg.RabbitMQ.Enabled {
		rabbitClient, err := bootstrap.InitRabbitMQ(&cfg.RabbitMQ, []string{string(stage.Pending())}, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()

		deliveries, err := rabbitClient.Consume(workerID)
		if err != nil {
			return fmt.Errorf("failed to consume wake-ups: %w", err)
		}

		workerCfg.Notifier = notify.NewPublisher(rabbitClient, appLogger.Logger)
		workerCfg.Wakeups = worker.StartWakeupDispatcher(ctx, deliveries, appLogger.Logger)

		appLogger.Info("RabbitMQ connection established",
			slog.String("queue", rabbitClient.QueueName()),
			slog.String("binding_key", string(stage.Pending())),
		)
	}

	if cfg.Metrics.Enabled {
		metricsSrv := startMetricsServer(&cfg.Metrics, appLogger.Logger)
		defer metricsSrv.Close()
	}

	workerInstance := worker.NewWorker(workerCfg)

	errChan := make(chan error, 1)
	go func() {
		errChan <- workerInstance.Start(ctx)
	}()

	appLogger.Info("Worker service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		if err != nil {
			appLogger.Error("Worker error", slog.Any("error", err))
		}
		return err
	}

	// Shutdown is observed between poll cycles; an in-flight job finishes first.
	cancel()

	done := make(chan struct{})
	go func() {
		workerInstance.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Worker stopped gracefully")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit; the job lease will expire and be reclaimed")
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

func defaultWorkerID(stage domain.Stage) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s-%s", stage, host, uuid.NewString()[:8])
}

func startMetricsServer(cfg *config.MetricsConfig, logger *slog.Logger) *http.Server {
	metrics.MustRegister()

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", slog.Any("error", err))
		}
	}()

	logger.Info("Metrics server listening",
		slog.String("address", srv.Addr),
		slog.String("path", cfg.Path),
	)
	return srv
}
