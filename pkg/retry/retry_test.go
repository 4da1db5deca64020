package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig(retries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries:        retries,
		InitialDelay:      time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	v, err := Retry(context.Background(), func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", &RetryableError{Type: NetworkError, Message: "reset"}
		}
		return "ok", nil
	}, fastConfig(3))

	assert.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, attempts)
}

func TestRetry_StopsOnProtocolError(t *testing.T) {
	attempts := 0
	_, err := Retry(context.Background(), func(ctx context.Context) (int, error) {
		attempts++
		return 0, &RetryableError{Type: ProtocolError, Message: "404"}
	}, fastConfig(5))

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_GivesUpAfterMaxRetries(t *testing.T) {
	attempts := 0
	boom := errors.New("boom")
	_, err := Retry(context.Background(), func(ctx context.Context) (int, error) {
		attempts++
		return 0, boom
	}, fastConfig(2))

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, attempts)
}

func TestRetry_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Retry(ctx, func(ctx context.Context) (int, error) {
		return 0, &RetryableError{Type: TimeoutError, Message: "slow"}
	}, &RetryConfig{MaxRetries: 3, InitialDelay: time.Second, MaxDelay: time.Second, BackoffMultiplier: 1})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateBackoffDelay(t *testing.T) {
	cfg := &RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond, BackoffMultiplier: 2}
	assert.Equal(t, 100*time.Millisecond, calculateBackoffDelay(0, cfg))
	assert.Equal(t, 200*time.Millisecond, calculateBackoffDelay(1, cfg))
	assert.Equal(t, 300*time.Millisecond, calculateBackoffDelay(2, cfg))
}
