package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/story-factory/internal/domain"
	"github.com/google/uuid"
)

// Memory is an in-process job store with the same conditional-write
// semantics as the Postgres store. It backs local runs and tests.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		jobs: make(map[string]*domain.Job),
		now:  time.Now,
	}
}

// Create inserts a new job in script_pending and returns a copy of it
func (m *Memory) Create(topic, style string) *domain.Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	job := &domain.Job{
		ID:        uuid.New().String(),
		Topic:     topic,
		Style:     style,
		Status:    domain.StatusScriptPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.jobs[job.ID] = job
	return job.Clone()
}

// Put stores a copy of job as-is, replacing any job with the same ID
func (m *Memory) Put(job *domain.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job.Clone()
}

// GetJobByID returns a copy of the job with the given ID
func (m *Memory) GetJobByID(_ context.Context, jobID string) (*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job.Clone(), nil
}

// List returns copies of all jobs ordered by creation time, newest first
func (m *Memory) List() []*domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		out = append(out, job.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// NextPending returns the oldest job in status, or nil when none is waiting
func (m *Memory) NextPending(_ context.Context, status domain.Status) (*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var next *domain.Job
	for _, job := range m.jobs {
		if job.Status != status {
			continue
		}
		if next == nil || job.CreatedAt.Before(next.CreatedAt) {
			next = job
		}
	}
	return next.Clone(), nil
}

// TryClaim performs the status compare-and-swap under the store lock
func (m *Memory) TryClaim(_ context.Context, jobID string, from, to domain.Status, owner string, leaseUntil time.Time) (bool, error) {
	if !domain.CanTransition(from, to) {
		return false, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, to)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || job.Status != from {
		return false, nil
	}

	job.Status = to
	job.LeaseOwner = &owner
	until := leaseUntil
	job.LeaseExpiresAt = &until
	job.UpdatedAt = m.now()
	return true, nil
}

// ExtendLease pushes the lease expiry of a job still owned by owner
func (m *Memory) ExtendLease(_ context.Context, jobID, owner string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || job.LeaseOwner == nil || *job.LeaseOwner != owner {
		return domain.ErrLeaseLost
	}
	job.LeaseExpiresAt = &until
	job.UpdatedAt = m.now()
	return nil
}

// Resolve writes a stage outcome for a job the caller still owns
func (m *Memory) Resolve(_ context.Context, jobID, owner string, from domain.Status, res domain.Resolution) error {
	if !domain.CanTransition(from, res.Status) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, res.Status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok || job.Status != from || job.LeaseOwner == nil || *job.LeaseOwner != owner {
		return domain.ErrLeaseLost
	}

	if res.At.IsZero() {
		res.At = m.now()
	}
	res.Apply(job)
	return nil
}

// ReclaimExpired returns expired processing jobs of stage to its pending status
func (m *Memory) ReclaimExpired(_ context.Context, stage domain.Stage, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var reclaimed int64
	for _, job := range m.jobs {
		if job.Status != stage.Processing() {
			continue
		}
		if job.LeaseExpiresAt != nil && !job.LeaseExpiresAt.Before(now) {
			continue
		}
		job.Status = stage.Pending()
		job.LeaseOwner = nil
		job.LeaseExpiresAt = nil
		job.UpdatedAt = now
		reclaimed++
	}
	return reclaimed, nil
}
