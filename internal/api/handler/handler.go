package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/story-factory/internal/api/storage"
	"github.com/cuongbtq/story-factory/internal/domain"
)

// JobStore is the job persistence the API needs
type JobStore interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJobByID(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error)
	Resubmit(ctx context.Context, jobID string) (*domain.Job, error)
}

// Notifier announces status changes so idle workers poll sooner
type Notifier interface {
	Publish(ctx context.Context, jobID string, status domain.Status) error
}

// AssetVerifier checks signed asset URLs issued by the local blob store
type AssetVerifier interface {
	Path(key string) (string, error)
	Verify(key, expires, sig string) error
}

// HealthChecker reports whether a backing service is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthChecks reports the first failing check
type HealthChecks []HealthChecker

// HealthCheck implements HealthChecker
func (hs HealthChecks) HealthCheck(ctx context.Context) error {
	for _, h := range hs {
		if err := h.HealthCheck(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Dependencies holds all dependencies needed by handlers.
// Notifier, Assets and Health are optional.
type Dependencies struct {
	Logger   *slog.Logger
	Store    JobStore
	Notifier Notifier
	Assets   AssetVerifier
	Health   HealthChecker
	Service  string
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger   *slog.Logger
	storage  JobStore
	notifier Notifier
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:   deps.Logger,
		storage:  deps.Store,
		notifier: deps.Notifier,
	}
}

// notify publishes a wake-up; failures only delay pickup until the next poll
func (h *JobHandler) notify(ctx context.Context, jobID string, status domain.Status) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.Publish(ctx, jobID, status); err != nil {
		h.logger.Warn("Failed to publish status event",
			slog.String("job_id", jobID),
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
	}
}
