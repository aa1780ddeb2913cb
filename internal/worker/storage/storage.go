package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/story-factory/internal/domain"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `
	id, topic, style, status, scenes, error_message, final_video_url,
	lease_owner, lease_expires_at, created_at, updated_at,
	script_completed_at, assets_completed_at, completed_at
`

// Storage handles all job store operations for the stage workers
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// GetJobByID retrieves a job from the database by its ID
func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM story_jobs WHERE id = $1`

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// NextPending returns one job waiting in the given status, or nil when none is waiting
func (s *Storage) NextPending(ctx context.Context, status domain.Status) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM story_jobs
		WHERE status = $1
		ORDER BY created_at
		LIMIT 1`

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query pending job: %w", err)
	}

	return &job, nil
}

// TryClaim moves a job from one status to another only if the stored status
// still equals from. It reports whether this caller won the claim.
func (s *Storage) TryClaim(ctx context.Context, jobID string, from, to domain.Status, owner string, leaseUntil time.Time) (bool, error) {
	if !domain.CanTransition(from, to) {
		return false, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}

	query := `
		UPDATE story_jobs
		SET status = $1,
		    lease_owner = $2,
		    lease_expires_at = $3,
		    updated_at = NOW()
		WHERE id = $4
		  AND status = $5
	`

	result, err := s.db.ExecContext(ctx, query, to, owner, leaseUntil.UTC(), jobID, from)
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Debug("Claim lost - job already claimed or no longer pending",
			slog.String("job_id", jobID),
			slog.String("worker_id", owner),
		)
		return false, nil
	}

	s.logger.Info("Job claimed successfully",
		slog.String("job_id", jobID),
		slog.String("worker_id", owner),
		slog.String("status", string(to)),
	)

	return true, nil
}

// ExtendLease pushes the lease expiry of a job still owned by owner
func (s *Storage) ExtendLease(ctx context.Context, jobID, owner string, until time.Time) error {
	query := `
		UPDATE story_jobs
		SET lease_expires_at = $1,
		    updated_at = NOW()
		WHERE id = $2 AND lease_owner = $3
	`

	result, err := s.db.ExecContext(ctx, query, until.UTC(), jobID, owner)
	if err != nil {
		return fmt.Errorf("failed to extend job lease: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return domain.ErrLeaseLost
	}

	return nil
}

// Resolve writes a stage outcome for a job the caller still owns. The write
// is guarded by both the processing status and the lease owner.
func (s *Storage) Resolve(ctx context.Context, jobID, owner string, from domain.Status, res domain.Resolution) error {
	if !domain.CanTransition(from, res.Status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, res.Status)
	}

	var errorMessage, finalVideoURL *string
	if res.Status.IsFailed() {
		errorMessage = &res.ErrorMessage
	}
	if res.Status == domain.StatusCompleted && res.FinalVideoURL != "" {
		finalVideoURL = &res.FinalVideoURL
	}

	at := res.At
	if at.IsZero() {
		at = time.Now()
	}

	query := `
		UPDATE story_jobs
		SET status = $1::text,
		    scenes = COALESCE($2::jsonb, scenes),
		    error_message = $3,
		    final_video_url = COALESCE($4::text, final_video_url),
		    script_completed_at = CASE WHEN $1::text = $5::text THEN $8 ELSE script_completed_at END,
		    assets_completed_at = CASE WHEN $1::text = $6::text THEN $8 ELSE assets_completed_at END,
		    completed_at = CASE WHEN $1::text = $7::text THEN $8 ELSE completed_at END,
		    lease_owner = NULL,
		    lease_expires_at = NULL,
		    updated_at = $8
		WHERE id = $9
		  AND status = $10
		  AND lease_owner = $11
	`

	result, err := s.db.ExecContext(ctx, query,
		res.Status,
		res.Scenes,
		errorMessage,
		finalVideoURL,
		domain.StatusAssetsPending,
		domain.StatusCompilePending,
		domain.StatusCompleted,
		at.UTC(),
		jobID,
		from,
		owner,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Job resolve rejected - lease no longer held",
			slog.String("job_id", jobID),
			slog.String("worker_id", owner),
			slog.String("status", string(res.Status)),
		)
		return domain.ErrLeaseLost
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", string(res.Status)),
	)

	return nil
}

// ReclaimExpired returns jobs whose processing lease expired before now to
// the stage's pending status. Processing rows without a lease are treated as
// expired.
func (s *Storage) ReclaimExpired(ctx context.Context, stage domain.Stage, now time.Time) (int64, error) {
	query := `
		UPDATE story_jobs
		SET status = $1,
		    lease_owner = NULL,
		    lease_expires_at = NULL,
		    updated_at = NOW()
		WHERE status = $2
		  AND (lease_expires_at IS NULL OR lease_expires_at < $3)
	`

	result, err := s.db.ExecContext(ctx, query, stage.Pending(), stage.Processing(), now.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim expired leases: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}
