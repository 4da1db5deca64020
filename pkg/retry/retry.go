package retry

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrorType classifies a failed attempt.
type ErrorType int

const (
	TimeoutError   ErrorType = iota // attempt timed out
	NetworkError                    // connection level failure
	ProtocolError                   // the peer rejected the request
	RateLimitError                  // the peer asked us to slow down
	InternalError                   // local failure
)

// RetryableError carries the ErrorType of a failed attempt.
type RetryableError struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *RetryableError) Error() string {
	return e.Message
}

func (e *RetryableError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether another attempt may succeed.
func (e *RetryableError) IsRetryable() bool {
	return e.Type == TimeoutError || e.Type == NetworkError || e.Type == RateLimitError
}

// RetryConfig controls attempts and backoff.
type RetryConfig struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:        2,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          1 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

type RetryableFunc[T any] func(ctx context.Context) (T, error)

// Retry runs fn until it succeeds, returns a non-retryable error, the
// attempts are used up, or ctx is done. A nil config uses the defaults.
func Retry[T any](ctx context.Context, fn RetryableFunc[T], config *RetryConfig) (T, error) {
	if config == nil {
		config = DefaultRetryConfig()
	}

	var zero T
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !isRetryableError(err) {
			return zero, err
		}
		lastErr = err

		if attempt < config.MaxRetries {
			timer := time.NewTimer(calculateBackoffDelay(attempt, config))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			}
		}
	}

	return zero, lastErr
}

// Errors that are not RetryableError are treated as retryable.
func isRetryableError(err error) bool {
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.IsRetryable()
	}
	return !errors.Is(err, context.Canceled)
}

func calculateBackoffDelay(attempt int, config *RetryConfig) time.Duration {
	delay := time.Duration(float64(config.InitialDelay) * math.Pow(config.BackoffMultiplier, float64(attempt)))
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		return config.MaxDelay
	}
	return delay
}
