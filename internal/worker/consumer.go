package worker

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/story-factory/internal/notify"
	amqp "github.com/rabbitmq/amqp091-go"
)

// StartWakeupDispatcher turns status notifications into wake-up signals for
// a polling loop. Signals coalesce: at most one is buffered, since a single
// poll cycle picks up whatever is pending. The returned channel is never
// closed; when deliveries stop the loop falls back to plain polling.
func StartWakeupDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery, logger *slog.Logger) <-chan struct{} {
	wake := make(chan struct{}, 1)

	go func() {
		logger.Info("Wake-up dispatcher started")

		for {
			select {
			case <-ctx.Done():
				logger.Info("Wake-up dispatcher stopped - context canceled")
				return

			case delivery, ok := <-deliveries:
				if !ok {
					logger.Warn("RabbitMQ delivery channel closed, falling back to polling")
					return
				}

				ev, err := notify.Decode(delivery.Body)
				if err != nil {
					logger.Error("Discarding malformed status event",
						slog.Any("error", err),
						slog.String("body", string(delivery.Body)),
					)
					if nackErr := delivery.Nack(false, false); nackErr != nil {
						logger.Debug("Failed to NACK malformed event", slog.Any("error", nackErr))
					}
					continue
				}

				if ackErr := delivery.Ack(false); ackErr != nil {
					logger.Debug("Failed to ACK status event", slog.Any("error", ackErr))
				}

				select {
				case wake <- struct{}{}:
					logger.Debug("Wake-up signaled",
						slog.String("job_id", ev.JobID),
						slog.String("status", string(ev.Status)),
					)
				default:
				}
			}
		}
	}()

	return wake
}
