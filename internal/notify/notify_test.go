package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cuongbtq/story-factory/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBroker struct {
	routingKey string
	body       []byte
	err        error
}

func (f *fakeBroker) PublishWithRetry(_ context.Context, routingKey string, body []byte, _ string) error {
	f.routingKey = routingKey
	f.body = body
	return f.err
}

func TestPublisher_Publish(t *testing.T) {
	b := &fakeBroker{}
	p := NewPublisher(b, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	jobID := "8b0f3c52-6f1e-4d7e-9a55-0d1c2b3a4f5e"
	require.NoError(t, p.Publish(context.Background(), jobID, domain.StatusAssetsPending))

	assert.Equal(t, "assets_pending", b.routingKey)
	ev, err := Decode(b.body)
	require.NoError(t, err)
	assert.Equal(t, jobID, ev.JobID)
	assert.Equal(t, domain.StatusAssetsPending, ev.Status)

	b.err = errors.New("channel closed")
	assert.Error(t, p.Publish(context.Background(), jobID, domain.StatusCompleted))
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"job_id":"8b0f3c52-6f1e-4d7e-9a55-0d1c2b3a4f5e","status":"compile_pending"}`, false},
		{"malformed json", `{"job_id":`, true},
		{"bad uuid", `{"job_id":"42","status":"compile_pending"}`, true},
		{"unknown status", `{"job_id":"8b0f3c52-6f1e-4d7e-9a55-0d1c2b3a4f5e","status":"done"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
