// Package notify publishes job status changes to a RabbitMQ topic exchange.
// The routing key is the new status, so each stage binds to its own pending
// status. Notifications only shorten idle waits; the job store stays the
// source of truth.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/story-factory/internal/domain"
	"github.com/google/uuid"
)

// Event is the message body published for a status change
type Event struct {
	JobID  string        `json:"job_id"`
	Status domain.Status `json:"status"`
	At     time.Time     `json:"at"`
}

type broker interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// Publisher sends status events to the exchange
type Publisher struct {
	broker broker
	logger *slog.Logger
	now    func() time.Time
}

// NewPublisher creates a publisher on top of a connected broker client
func NewPublisher(b broker, logger *slog.Logger) *Publisher {
	return &Publisher{broker: b, logger: logger, now: time.Now}
}

// Publish announces that jobID entered status
func (p *Publisher) Publish(ctx context.Context, jobID string, status domain.Status) error {
	body, err := json.Marshal(Event{JobID: jobID, Status: status, At: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal status event: %w", err)
	}

	if err := p.broker.PublishWithRetry(ctx, string(status), body, "application/json"); err != nil {
		return fmt.Errorf("failed to publish status event: %w", err)
	}

	p.logger.Debug("Status event published",
		slog.String("job_id", jobID),
		slog.String("status", string(status)),
	)
	return nil
}

// Decode parses and validates an event body
func Decode(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("invalid event JSON: %w", err)
	}
	if _, err := uuid.Parse(ev.JobID); err != nil {
		return Event{}, fmt.Errorf("invalid job_id %q: %w", ev.JobID, err)
	}
	if !ev.Status.Valid() {
		return Event{}, fmt.Errorf("unknown status %q", ev.Status)
	}
	return ev, nil
}
