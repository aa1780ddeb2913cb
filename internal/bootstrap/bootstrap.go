// Package bootstrap builds the clients shared by the service binaries from
// loaded configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/cuongbtq/story-factory/internal/blob"
	"github.com/cuongbtq/story-factory/internal/config"
	"github.com/cuongbtq/story-factory/shared/logger"
	"github.com/cuongbtq/story-factory/shared/postgresql"
	"github.com/cuongbtq/story-factory/shared/rabbitmq"
	"github.com/joho/godotenv"
)

// LoadConfig loads .env (if present) and then the YAML file at path.
// An empty path falls back to envVar and then to defaultPath.
func LoadConfig(path, envVar, defaultPath string) (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	if path == "" {
		path = os.Getenv(envVar)
	}
	if path == "" {
		path = defaultPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// InitLogger initializes and configures the application logger
func InitLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableSource,
		TimeFormat:   time.RFC3339,
	})
}

// InitPostgreSQL connects to the database and applies the schema when
// auto_migrate is set
func InitPostgreSQL(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	client, err := postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := client.EnsureSchema(ctx); err != nil {
			client.Close()
			return nil, err
		}
	}
	return client, nil
}

// InitRabbitMQ connects to the status exchange. A worker passes its pending
// status as a binding key to receive wake-ups; publishers pass none.
func InitRabbitMQ(cfg *config.RabbitMQConfig, bindingKeys []string, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		BindingKeys:        bindingKeys,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}

// BlobStore is a blob.Store that may hold a connection to release
type BlobStore interface {
	blob.Store
	Close() error
}

type nopCloser struct{ blob.Store }

func (nopCloser) Close() error { return nil }

// InitBlobStore opens the configured blob backend
func InitBlobStore(ctx context.Context, cfg *config.StorageConfig, logger *slog.Logger) (BlobStore, error) {
	switch cfg.Backend {
	case "gcs":
		return blob.NewGCS(ctx, blob.GCSConfig{
			Bucket:          cfg.Bucket,
			CredentialsFile: cfg.CredentialsFile,
		}, logger)
	case "local":
		local, err := blob.NewLocal(blob.LocalConfig{
			Root:    cfg.LocalRoot,
			BaseURL: cfg.PublicBaseURL,
			Secret:  cfg.SigningSecret,
		}, logger)
		if err != nil {
			return nil, err
		}
		return nopCloser{local}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.Backend)
	}
}

// LocalAssets returns the local store behind s, if that is the backend
func LocalAssets(s BlobStore) (*blob.Local, bool) {
	if n, ok := s.(nopCloser); ok {
		local, ok := n.Store.(*blob.Local)
		return local, ok
	}
	return nil, false
}
