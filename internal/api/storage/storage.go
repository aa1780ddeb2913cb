package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/story-factory/internal/domain"
	"github.com/cuongbtq/story-factory/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `
	id, topic, style, status, scenes, error_message, final_video_url,
	lease_owner, lease_expires_at, created_at, updated_at,
	script_completed_at, assets_completed_at, completed_at
`

// Storage serves the operator-facing job queries
type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// CreateJob inserts a new job in script_pending
func (s *Storage) CreateJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO story_jobs (
			id, topic, style, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.ID,
		job.Topic,
		job.Style,
		job.Status,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*domain.Job, error) {
	var job domain.Job
	query := `SELECT ` + jobColumns + ` FROM story_jobs WHERE id = $1`

	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

type JobFilter struct {
	Status   domain.Status
	PageSize int
	Cursor   *JobCursor
}

// JobCursor marks the last job of a page in created_at DESC, id DESC order
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobs returns up to PageSize+1 jobs so callers can tell whether
// another page exists
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM story_jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// Resubmit moves a failed job back to its stage's pending status and
// clears the error message. Scenes and completion timestamps are kept.
func (s *Storage) Resubmit(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
		UPDATE story_jobs
		SET status = CASE status
				WHEN $2 THEN $3
				WHEN $4 THEN $5
			END,
			error_message = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status IN ($2, $4)
		RETURNING ` + jobColumns

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query,
		jobID,
		domain.StatusScriptFailed, domain.StatusScriptPending,
		domain.StatusCompileFailed, domain.StatusCompilePending,
	)
	if err == nil {
		return &job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to resubmit job: %w", err)
	}

	if _, err := s.GetJobByID(ctx, jobID); err != nil {
		return nil, err
	}
	return nil, domain.ErrNotResubmittable
}
