package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		ShouldRetry:  IsRetryable,
	}
}

func TestRetryWithResult_SucceedsAfterTransientFailures(t *testing.T) {
	// Given: a function that is rate limited twice then succeeds
	calls := 0
	fn := func() (string, error) {
		calls++
		if calls < 3 {
			return "", New(ErrCodeEmbedRateLimited, "429", nil)
		}
		return "ok", nil
	}

	// When: retrying with five retries available
	got, err := RetryWithResult(context.Background(), fastRetryConfig(5), fn)

	// Then: the third attempt wins
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestRetryWithResult_StopsOnNonRetryable(t *testing.T) {
	// Given: a function failing with a permanent error
	calls := 0
	permanent := New(ErrCodeEmbeddingFailed, "400 bad request", nil)

	// When: retrying
	_, err := RetryWithResult(context.Background(), fastRetryConfig(5), func() (int, error) {
		calls++
		return 0, permanent
	})

	// Then: only one attempt is made and the error is returned as-is
	assert.Equal(t, 1, calls)
	assert.Same(t, permanent, err)
}

func TestRetryWithResult_ExhaustsRetries(t *testing.T) {
	calls := 0
	_, err := RetryWithResult(context.Background(), fastRetryConfig(2), func() (int, error) {
		calls++
		return 0, New(ErrCodeEmbedUnavailable, "503", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "failed after 2 retries")
	assert.Equal(t, ErrCodeEmbedUnavailable, GetCode(err))
}

func TestRetry_NilShouldRetryRetriesEverything(t *testing.T) {
	cfg := fastRetryConfig(3)
	cfg.ShouldRetry = nil

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		if calls == 2 {
			return nil
		}
		return errors.New("flaky")
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetry_OnRetryReportsBackoff(t *testing.T) {
	cfg := fastRetryConfig(3)
	var waits []time.Duration
	cfg.OnRetry = func(_ int, _ error, wait time.Duration) {
		waits = append(waits, wait)
	}

	_ = Retry(context.Background(), cfg, func() error {
		return New(ErrCodeEmbedRateLimited, "429", nil)
	})

	// Then: delays double and are capped
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}, waits)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastRetryConfig(3), func() error { return nil })

	assert.ErrorIs(t, err, context.Canceled)
}
