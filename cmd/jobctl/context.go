package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/cuongbtq/story-factory/internal/api/storage"
	"github.com/cuongbtq/story-factory/internal/bootstrap"
	"github.com/cuongbtq/story-factory/internal/domain"
	"github.com/cuongbtq/story-factory/internal/notify"
)

type jobStore interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJobByID(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error)
	Resubmit(ctx context.Context, jobID string) (*domain.Job, error)
}

type notifier interface {
	Publish(ctx context.Context, jobID string, status domain.Status) error
}

// session is what a command works against; notifier may be nil
type session struct {
	store    jobStore
	notifier notifier
}

type commandContext struct {
	configPath string

	// open connects to the job store; replaced in tests
	open func(ctx context.Context) (*session, func(), error)
}

func newCommandContext() *commandContext {
	c := &commandContext{}
	c.open = c.openDatabase
	return c
}

func (c *commandContext) withSession(ctx context.Context, fn func(*session) error) error {
	s, closeFn, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(s)
}

func (c *commandContext) openDatabase(ctx context.Context) (*session, func(), error) {
	cfg, err := bootstrap.LoadConfig(c.configPath, "API_SERVICE_CONFIG_PATH", "configs/api-service.yaml")
	if err != nil {
		return nil, nil, err
	}

	// CLI output stays clean; connection chatter is discarded.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := bootstrap.InitPostgreSQL(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	s := &session{store: storage.NewStorage(db)}
	closers := []func() error{db.Close}

	if cfg.RabbitMQ.Enabled {
		rabbit, err := bootstrap.InitRabbitMQ(&cfg.RabbitMQ, nil, logger)
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("connect rabbitmq: %w", err)
		}
		s.notifier = notify.NewPublisher(rabbit, logger)
		closers = append(closers, rabbit.Close)
	}

	return s, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}, nil
}

// announce publishes a wake-up; a failure is reported but not fatal
func (s *session) announce(ctx context.Context, w io.Writer, job *domain.Job) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, job.ID, job.Status); err != nil {
		fmt.Fprintf(w, "warning: wake-up not published: %v\n", err)
	}
}
