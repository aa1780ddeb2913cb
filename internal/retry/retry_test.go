package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo(t *testing.T) {
	errFlaky := errors.New("503 service unavailable")

	tests := []struct {
		name      string
		attempts  int
		failures  int
		wantCalls int
		wantErr   error
	}{
		{name: "first attempt succeeds", attempts: 3, failures: 0, wantCalls: 1},
		{name: "fails twice then succeeds", attempts: 3, failures: 2, wantCalls: 3},
		{name: "exhausted returns final error", attempts: 3, failures: 5, wantCalls: 3, wantErr: errFlaky},
		{name: "zero attempts still calls once", attempts: 0, failures: 5, wantCalls: 1, wantErr: errFlaky},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			got, err := Do(context.Background(), Fixed(tt.attempts, time.Millisecond), func(ctx context.Context) (string, error) {
				calls++
				if calls <= tt.failures {
					return "", errFlaky
				}
				return "ok", nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.Same(t, tt.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ok", got)
		})
	}
}

func TestDo_WaitsBetweenAttempts(t *testing.T) {
	var retried []int
	policy := Policy{
		Attempts: 3,
		Wait:     20 * time.Millisecond,
		OnRetry:  func(attempt int, err error) { retried = append(retried, attempt) },
	}

	start := time.Now()
	_, err := Do(context.Background(), policy, func(ctx context.Context) (int, error) {
		return 0, errors.New("down")
	})
	require.Error(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_ContextCanceledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	_, err := Do(ctx, Fixed(3, time.Hour), func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("down")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
