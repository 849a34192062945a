// SPDX-License-Identifier: Apache-2.0
// Package resilience provides retry and circuit breaker policies.
package resilience

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand"
	"time"

	"github.com/jllopis/taskbridge/pkg/errors"
)

// RetryConfig controls retry behavior.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (must be >= 1).
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the backoff delay. Zero means no cap.
	MaxDelay time.Duration

	// Multiplier for exponential backoff. 1 gives a fixed delay.
	Multiplier float64

	// Jitter between 0 and 1; 0.1 means ±10%.
	Jitter float64

	// IsRecoverable decides whether an error is retried.
	// If nil, isRecoverableDefault is used.
	IsRecoverable func(error) bool

	// OnRetry is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig returns exponential backoff with jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// FixedRetryConfig retries every error up to attempts times with a constant delay.
func FixedRetryConfig(attempts int, delay time.Duration) RetryConfig {
	return RetryConfig{
		MaxAttempts:   attempts,
		InitialDelay:  delay,
		Multiplier:    1,
		IsRecoverable: func(err error) bool { return !isContextErr(err) },
	}
}

// WithMaxAttempts returns a new config with MaxAttempts set.
func (rc RetryConfig) WithMaxAttempts(max int) RetryConfig {
	rc.MaxAttempts = max
	return rc
}

// WithIsRecoverable returns a new config with IsRecoverable set.
func (rc RetryConfig) WithIsRecoverable(fn func(error) bool) RetryConfig {
	rc.IsRecoverable = fn
	return rc
}

// WithOnRetry returns a new config with OnRetry set.
func (rc RetryConfig) WithOnRetry(fn func(attempt int, err error)) RetryConfig {
	rc.OnRetry = fn
	return rc
}

// Do runs fn until it succeeds, returns a non-recoverable error or the
// attempts run out. fn receives the 1-based attempt number. The last error
// is returned when every attempt fails.
func (rc RetryConfig) Do(ctx context.Context, fn func(attempt int) error) error {
	if rc.MaxAttempts < 1 {
		rc.MaxAttempts = 1
	}
	if rc.IsRecoverable == nil {
		rc.IsRecoverable = isRecoverableDefault
	}

	var lastErr error
	for attempt := 1; attempt <= rc.MaxAttempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(calculateBackoff(attempt-1, rc))
			select {
			case <-ctx.Done():
				timer.Stop()
				return errors.New(errors.CodeTimeout, "context done during retry", ctx.Err()).
					WithContext("attempt", attempt).
					WithContext("max_attempts", rc.MaxAttempts)
			case <-timer.C:
			}
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if !rc.IsRecoverable(err) {
			return err
		}
		if attempt < rc.MaxAttempts && rc.OnRetry != nil {
			rc.OnRetry(attempt, err)
		}
	}
	return lastErr
}

// DoWithResult is Do for functions that return a value.
func DoWithResult[T any](ctx context.Context, rc RetryConfig, fn func(attempt int) (T, error)) (T, error) {
	var result T
	err := rc.Do(ctx, func(attempt int) error {
		var fnErr error
		result, fnErr = fn(attempt)
		return fnErr
	})
	return result, err
}

// calculateBackoff returns InitialDelay * Multiplier^(retry-1), capped and jittered.
func calculateBackoff(retry int, rc RetryConfig) time.Duration {
	if rc.Multiplier == 0 {
		rc.Multiplier = 2.0
	}
	delay := time.Duration(float64(rc.InitialDelay) * math.Pow(rc.Multiplier, float64(retry-1)))
	if rc.MaxDelay > 0 && delay > rc.MaxDelay {
		delay = rc.MaxDelay
	}
	if rc.Jitter > 0 {
		spread := float64(delay) * rc.Jitter
		delay = time.Duration(float64(delay) + spread*2*(rand.Float64()-0.5))
		if delay < 0 {
			delay = 0
		}
	}
	return delay
}

// isRecoverableDefault honors the Recoverable flag of typed errors and
// retries untyped errors, except context cancellation.
func isRecoverableDefault(err error) bool {
	if err == nil || isContextErr(err) {
		return false
	}
	if e := errors.As(err); e != nil {
		return e.Recoverable
	}
	return true
}

func isContextErr(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}
