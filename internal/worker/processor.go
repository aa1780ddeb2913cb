package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/story-factory/internal/domain"
	"github.com/cuongbtq/story-factory/internal/metrics"
)

// resolveTimeout bounds the write of a job's resolution
const resolveTimeout = 30 * time.Second

// RunOnce performs one poll cycle: reclaim expired leases, find the oldest
// pending job, claim it and process it. busy reports whether a job was
// found, so the caller can poll again without sleeping.
func (w *Worker) RunOnce(ctx context.Context) (busy bool, err error) {
	reclaimed, err := w.store.ReclaimExpired(ctx, w.stage, w.now())
	if err != nil {
		return false, fmt.Errorf("failed to reclaim expired leases: %w", err)
	}
	if reclaimed > 0 {
		metrics.AddLeasesReclaimed(string(w.stage), reclaimed)
		w.logger.Warn("Reclaimed jobs with expired leases",
			slog.Int64("count", reclaimed),
		)
	}

	job, err := w.store.NextPending(ctx, w.stage.Pending())
	if err != nil {
		return false, fmt.Errorf("failed to find pending job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	from, to := w.stage.Pending(), w.stage.Processing()
	claimed, err := w.store.TryClaim(ctx, job.ID, from, to, w.workerID, w.now().Add(w.leaseDuration))
	if err != nil {
		return false, fmt.Errorf("failed to claim job %s: %w", job.ID, err)
	}
	if !claimed {
		metrics.IncClaimConflict(string(w.stage))
		w.logger.Debug("Job already claimed, skipping",
			slog.String("job_id", job.ID),
			slog.Any("reason", domain.ErrJobAlreadyClaimed),
		)
		return true, nil
	}

	job.Status = to
	if err := w.processJob(ctx, job); err != nil {
		return true, err
	}
	return true, nil
}

// processJob runs the stage processor on a claimed job with a heartbeat and
// persists the resolution. Cancellation of ctx does not interrupt a job in
// flight; only the job timeout does. The resolution is written on its own
// context so a timed-out job still reaches its failure status.
func (w *Worker) processJob(ctx context.Context, job *domain.Job) error {
	w.logger.Info("Processing job",
		slog.String("job_id", job.ID),
		slog.String("topic", job.Topic),
	)
	started := w.now()

	jobCtx := context.WithoutCancel(ctx)
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(jobCtx, w.jobTimeout)
		defer cancel()
	}

	heartbeatDone := make(chan struct{})
	go w.sendJobHeartbeat(jobCtx, job.ID, heartbeatDone)

	res := w.execute(jobCtx, job)
	close(heartbeatDone)

	if res.At.IsZero() {
		res.At = w.now()
	}

	storeCtx, cancelStore := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
	defer cancelStore()

	if err := w.store.Resolve(storeCtx, job.ID, w.workerID, job.Status, res); err != nil {
		if errors.Is(err, domain.ErrLeaseLost) {
			w.logger.Warn("Lease lost before resolution, discarding result",
				slog.String("job_id", job.ID),
				slog.String("status", string(res.Status)),
			)
			return nil
		}
		return fmt.Errorf("failed to resolve job %s to %s: %w", job.ID, res.Status, err)
	}

	elapsed := w.now().Sub(started)
	metrics.ObserveStage(string(w.stage), string(res.Status), elapsed)

	if res.Status.IsFailed() {
		w.logger.Error("Job failed",
			slog.String("job_id", job.ID),
			slog.String("status", string(res.Status)),
			slog.String("error", res.ErrorMessage),
			slog.Duration("elapsed", elapsed),
		)
	} else {
		w.logger.Info("Job advanced",
			slog.String("job_id", job.ID),
			slog.String("status", string(res.Status)),
			slog.Duration("elapsed", elapsed),
		)
	}

	if w.notifier != nil {
		if err := w.notifier.Publish(storeCtx, job.ID, res.Status); err != nil {
			w.logger.Warn("Failed to publish status notification",
				slog.String("job_id", job.ID),
				slog.Any("error", err),
			)
		}
	}
	return nil
}

// execute calls the processor and turns a panic into the stage's fallback
// resolution
func (w *Worker) execute(ctx context.Context, job *domain.Job) (res domain.Resolution) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Processor panicked",
				slog.String("job_id", job.ID),
				slog.Any("panic", r),
			)
			res = fallbackResolution(w.stage, job, fmt.Errorf("panic: %v", r))
		}
	}()

	return w.processor.Process(ctx, job.Clone())
}

// fallbackResolution fails the job where the stage has a failure status and
// otherwise advances it untouched
func fallbackResolution(stage domain.Stage, job *domain.Job, err error) domain.Resolution {
	if failed, ok := stage.Failed(); ok {
		return domain.Failed(failed, "%s stage error: %v", stage, err)
	}
	return domain.Succeeded(stage.Next(), job.Scenes)
}

// sendJobHeartbeat periodically extends the lease of the job being processed
func (w *Worker) sendJobHeartbeat(ctx context.Context, jobID string, done <-chan struct{}) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()

	w.logger.Debug("Job heartbeat started",
		slog.String("job_id", jobID),
	)

	for {
		select {
		case <-done:
			w.logger.Debug("Job heartbeat stopped",
				slog.String("job_id", jobID),
			)
			return

		case <-ctx.Done():
			w.logger.Debug("Job heartbeat stopped - context canceled",
				slog.String("job_id", jobID),
			)
			return

		case <-ticker.C:
			until := w.now().Add(w.leaseDuration)
			if err := w.store.ExtendLease(ctx, jobID, w.workerID, until); err != nil {
				w.logger.Warn("Failed to extend job lease",
					slog.String("job_id", jobID),
					slog.Any("error", err),
				)
				if errors.Is(err, domain.ErrLeaseLost) {
					return
				}
				continue
			}
			w.logger.Debug("Job lease extended",
				slog.String("job_id", jobID),
				slog.Time("lease_expires_at", until),
			)
		}
	}
}
