package llmprovider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRetry_SucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), DefaultRetryPolicy, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	policy := RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, BackoffFactor: 2, MaxDelay: 10 * time.Millisecond}

	err := WithRetry(context.Background(), policy, func() error {
		calls++
		if calls < 3 {
			return errors.New("503 service unavailable")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_NonRetryableFailsImmediately(t *testing.T) {
	calls := 0
	policy := RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond, BackoffFactor: 2, MaxDelay: 10 * time.Millisecond}

	err := WithRetry(context.Background(), policy, func() error {
		calls++
		return errors.New("content policy violation")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_ExhaustsRetriesAndReturnsLastErr(t *testing.T) {
	calls := 0
	policy := RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, BackoffFactor: 2, MaxDelay: 10 * time.Millisecond}

	err := WithRetry(context.Background(), policy, func() error {
		calls++
		return errors.New("429 too many requests")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls) // initial + 2 retries
}

func TestWithRetry_ContextCancelStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{MaxRetries: 5, InitialDelay: 50 * time.Millisecond, BackoffFactor: 2, MaxDelay: time.Second}

	calls := 0
	err := WithRetry(ctx, policy, func() error {
		calls++
		if calls == 1 {
			cancel()
		}
		return errors.New("timeout")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestCalculateBackoff_CapsAtMaxDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 10, MaxDelay: 2 * time.Second}
	d := calculateBackoff(policy, 5)
	assert.Equal(t, 2*time.Second, d)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(errors.New("rate limit exceeded")))
	assert.True(t, isRetryable(errors.New("connection reset by peer")))
	assert.False(t, isRetryable(errors.New("invalid api key")))
}
