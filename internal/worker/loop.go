package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/story-factory/internal/metrics"
)

// Start runs the polling loop until ctx is canceled or Stop is called. It
// returns only on shutdown; faults are logged and backed off.
func (w *Worker) Start(ctx context.Context) error {
	w.wg.Add(1)
	defer w.wg.Done()

	w.logger.Info("Starting worker",
		slog.String("pending_status", string(w.stage.Pending())),
		slog.Duration("idle_interval", w.idleInterval),
		slog.Duration("error_interval", w.errorInterval),
		slog.Duration("lease_duration", w.leaseDuration),
	)

	for {
		if w.stopping(ctx) {
			w.logger.Info("Worker loop exiting")
			return nil
		}

		busy, err := w.RunOnce(ctx)
		switch {
		case err != nil:
			metrics.IncLoopFault(string(w.stage))
			w.logger.Error("Critical error in polling loop, backing off",
				slog.Any("error", err),
				slog.Duration("retry_after", w.errorInterval),
			)
			w.sleep(ctx, w.errorInterval, nil)
		case !busy:
			w.sleep(ctx, w.idleInterval, w.wakeups)
		}
	}
}

func (w *Worker) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-w.stopChan:
		return true
	default:
		return false
	}
}

// sleep waits for d, shutdown, or a wake-up signal, whichever comes first
func (w *Worker) sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-w.stopChan:
	case <-timer.C:
	case <-wake:
		w.logger.Debug("Woken up by status notification")
	}
}
