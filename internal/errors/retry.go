package errors

import (
	"context"
	"time"
)

// Backoff bounds a retry loop.
type Backoff struct {
	// Retries is the number of attempts after the first one.
	Retries int
	// Initial is the delay before the first retry. It doubles after each retry.
	Initial time.Duration
	// Max caps the delay.
	Max time.Duration
}

// RetryWithResult calls fn until it succeeds or fails with an error that
// IsRetryable rejects. It gives up after b.Retries retries or when ctx ends,
// returning the last error from fn as-is.
func RetryWithResult[T any](ctx context.Context, b Backoff, fn func() (T, error)) (T, error) {
	delay := b.Initial
	for attempt := 0; ; attempt++ {
		result, err := fn()
		if err == nil || !IsRetryable(err) || attempt >= b.Retries {
			return result, err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			var zero T
			return zero, ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if b.Max > 0 && delay > b.Max {
			delay = b.Max
		}
	}
}
