package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/cuongbtq/story-factory/internal/api/handler"
	"github.com/cuongbtq/story-factory/internal/api/router"
	"github.com/cuongbtq/story-factory/internal/api/storage"
	"github.com/cuongbtq/story-factory/internal/bootstrap"
	"github.com/cuongbtq/story-factory/internal/notify"
	"github.com/cuongbtq/story-factory/shared/rabbitmq"
	"github.com/gin-gonic/gin"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to configuration file (default $API_SERVICE_CONFIG_PATH or configs/api-service.yaml)")
	flag.Parse()

	cfg, err := bootstrap.LoadConfig(*configPath, "API_SERVICE_CONFIG_PATH", "configs/api-service.yaml")
	if err != nil {
		return err
	}

	if err := cfg.ValidateAPIConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := bootstrap.InitLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()
	appLogger = appLogger.With(slog.String("service", "api"))

	appLogger.Info("Starting API service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := bootstrap.InitPostgreSQL(ctx, &cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		appLogger.Info("Closing database", slog.String("pool", dbClient.Stats()))
		dbClient.Close()
	}()

	appLogger.Info("Database connection established")

	health := handler.HealthChecks{dbClient}

	deps := &handler.Dependencies{
		Logger:  appLogger.Logger,
		Store:   storage.NewStorage(dbClient),
		Health:  health,
		Service: cfg.App.Name,
	}

	var rabbitClient *rabbitmq.Client
	if cfg.RabbitMQ.Enabled {
		rabbitClient, err = bootstrap.InitRabbitMQ(&cfg.RabbitMQ, nil, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()

		deps.Notifier = notify.NewPublisher(rabbitClient, appLogger.Logger)
		health = append(health, rabbitClient)
		deps.Health = health
		appLogger.Info("RabbitMQ connection established")
	}

	blobs, err := bootstrap.InitBlobStore(ctx, &cfg.Storage, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}
	defer blobs.Close()

	if local, ok := bootstrap.LocalAssets(blobs); ok {
		deps.Assets = local
	}

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router.SetupRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	appLogger.Info("API service is running",
		slog.String("address", addr),
		slog.Bool("wakeups", deps.Notifier != nil),
		slog.Bool("serving_assets", deps.Assets != nil),
	)

	select {
	case <-ctx.Done():
		appLogger.Info("Shutting down server...")
	case err := <-serveErr:
		appLogger.Error("Server failed", slog.Any("error", err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", slog.Any("error", err))
		return err
	}

	appLogger.Info("Server shutdown complete")
	return nil
}
