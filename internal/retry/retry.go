// Package retry provides a fixed-interval retry combinator for flaky calls
// to external providers.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy describes how many times a call is attempted and how long to wait
// between attempts. The wait is fixed and carries no jitter.
type Policy struct {
	Attempts int
	Wait     time.Duration

	// OnRetry is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// Fixed returns a policy with the given attempt count and fixed wait.
func Fixed(attempts int, wait time.Duration) Policy {
	return Policy{Attempts: attempts, Wait: wait}
}

// Do calls fn until it succeeds or the policy's attempts are exhausted. The
// error of the final attempt is returned unmodified. A canceled context stops
// the wait between attempts and returns the context error.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		result T
		err    error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}
		if attempt == attempts {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		if waitErr := sleep(ctx, p.Wait); waitErr != nil {
			var zero T
			return zero, fmt.Errorf("retry canceled after attempt %d: %w", attempt, waitErr)
		}
	}

	return result, err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
