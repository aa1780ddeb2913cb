package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/story-factory/internal/domain"
)

// JobStore is the subset of the job store a stage worker needs
type JobStore interface {
	NextPending(ctx context.Context, status domain.Status) (*domain.Job, error)
	TryClaim(ctx context.Context, jobID string, from, to domain.Status, owner string, leaseUntil time.Time) (bool, error)
	ExtendLease(ctx context.Context, jobID, owner string, until time.Time) error
	Resolve(ctx context.Context, jobID, owner string, from domain.Status, res domain.Resolution) error
	ReclaimExpired(ctx context.Context, stage domain.Stage, now time.Time) (int64, error)
}

// Processor performs the work of one stage on a claimed job and returns the
// resolution to persist
type Processor interface {
	Stage() domain.Stage
	Process(ctx context.Context, job *domain.Job) domain.Resolution
}

// Notifier announces status changes so the next stage can poll early
type Notifier interface {
	Publish(ctx context.Context, jobID string, status domain.Status) error
}

// Config holds worker configuration
type Config struct {
	Logger    *slog.Logger
	Store     JobStore
	Processor Processor
	Notifier  Notifier        // optional
	Wakeups   <-chan struct{} // optional; a receive ends an idle wait early
	WorkerID  string

	IdleInterval      time.Duration
	ErrorInterval     time.Duration
	LeaseDuration     time.Duration
	HeartbeatInterval time.Duration
	JobTimeout        time.Duration

	Now func() time.Time
}

// Worker runs the polling loop of one pipeline stage
type Worker struct {
	logger    *slog.Logger
	store     JobStore
	processor Processor
	notifier  Notifier
	wakeups   <-chan struct{}
	stage     domain.Stage
	workerID  string

	idleInterval      time.Duration
	errorInterval     time.Duration
	leaseDuration     time.Duration
	heartbeatInterval time.Duration
	jobTimeout        time.Duration
	now               func() time.Time

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	w := &Worker{
		logger:            cfg.Logger,
		store:             cfg.Store,
		processor:         cfg.Processor,
		notifier:          cfg.Notifier,
		wakeups:           cfg.Wakeups,
		stage:             cfg.Processor.Stage(),
		workerID:          cfg.WorkerID,
		idleInterval:      cfg.IdleInterval,
		errorInterval:     cfg.ErrorInterval,
		leaseDuration:     cfg.LeaseDuration,
		heartbeatInterval: cfg.HeartbeatInterval,
		jobTimeout:        cfg.JobTimeout,
		now:               cfg.Now,
		stopChan:          make(chan struct{}),
	}

	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.idleInterval <= 0 {
		w.idleInterval = 10 * time.Second
	}
	if w.errorInterval <= 0 {
		w.errorInterval = 30 * time.Second
	}
	if w.leaseDuration <= 0 {
		w.leaseDuration = 10 * time.Minute
	}
	if w.heartbeatInterval <= 0 || w.heartbeatInterval >= w.leaseDuration {
		w.heartbeatInterval = w.leaseDuration / 3
	}

	w.logger = w.logger.With(
		slog.String("stage", string(w.stage)),
		slog.String("worker_id", w.workerID),
	)

	return w
}

// Stage returns the pipeline stage this worker serves
func (w *Worker) Stage() domain.Stage {
	return w.stage
}

// Stop asks the loop to exit after the current poll cycle and waits for it
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}
