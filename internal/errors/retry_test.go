package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastBackoff = Backoff{Retries: 3, Initial: time.Millisecond, Max: 4 * time.Millisecond}

func unavailable() error {
	return New(ErrCodeDaemonUnavailable, "daemon not up yet", nil)
}

func TestRetryWithResult_SucceedsAfterRetryableErrors(t *testing.T) {
	// Given: a dial that is refused twice
	attempts := 0
	fn := func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", unavailable()
		}
		return "conn", nil
	}

	// When: retrying
	got, err := RetryWithResult(context.Background(), fastBackoff, fn)

	// Then: the third attempt's result is returned
	require.NoError(t, err)
	assert.Equal(t, "conn", got)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithResult_StopsOnNonRetryableError(t *testing.T) {
	attempts := 0
	_, err := RetryWithResult(context.Background(), fastBackoff, func() (int, error) {
		attempts++
		return 0, errors.New("permission denied")
	})

	assert.EqualError(t, err, "permission denied")
	assert.Equal(t, 1, attempts)
}

func TestRetryWithResult_ReturnsLastErrorWhenExhausted(t *testing.T) {
	attempts := 0
	_, err := RetryWithResult(context.Background(), Backoff{Retries: 2, Initial: time.Millisecond}, func() (int, error) {
		attempts++
		return 0, unavailable()
	})

	assert.Equal(t, ErrCodeDaemonUnavailable, GetCode(err))
	assert.Equal(t, 3, attempts, "first attempt plus two retries")
}

func TestRetryWithResult_ContextCanceledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	_, err := RetryWithResult(ctx, Backoff{Retries: 5, Initial: time.Hour}, func() (int, error) {
		attempts++
		cancel()
		return 0, unavailable()
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithResult_CapsDelay(t *testing.T) {
	var stamps []time.Time
	b := Backoff{Retries: 4, Initial: 5 * time.Millisecond, Max: 10 * time.Millisecond}

	start := time.Now()
	_, _ = RetryWithResult(context.Background(), b, func() (int, error) {
		stamps = append(stamps, time.Now())
		return 0, unavailable()
	})

	require.Len(t, stamps, 5)
	// 5 + 10 + 10 + 10 ms of waiting
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
	assert.Less(t, time.Since(start), 2*time.Second)
}
