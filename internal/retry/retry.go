// Package retry runs an operation with capped exponential backoff, full jitter
// and support for upstream Retry-After hints.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	apperrors "github.com/MrRuperto3/TAO-App/internal/errors"
	"github.com/MrRuperto3/TAO-App/internal/logging"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts  int           // total attempts including the first
	InitialDelay time.Duration // backoff ceiling before the second attempt
	MaxDelay     time.Duration // cap on the backoff ceiling
	Multiplier   float64
	// ShouldRetry decides whether an error is worth another attempt.
	// Nil means apperrors.IsRetryable.
	ShouldRetry func(error) bool

	// jitter picks the actual sleep in [0, ceiling]; replaced in tests
	jitter func(ceiling time.Duration) time.Duration
}

// DefaultRetryConfig returns a default retry configuration.
// Ceilings: 500ms, 1s, 2s, capped at 10s.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  4,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryResult contains information about the retry operation
type RetryResult struct {
	Attempts      int           `json:"attempts"`
	Success       bool          `json:"success"`
	TotalDuration time.Duration `json:"totalDuration"`
	LastError     error         `json:"-"`
}

// RetryFunc is a function that can be retried
type RetryFunc func(ctx context.Context, attempt int) error

func fullJitter(ceiling time.Duration) time.Duration {
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(ceiling) + 1))
}

// WithExponentialBackoff executes fn until it succeeds, returns a non-retryable
// error, runs out of attempts, or ctx is done.
func WithExponentialBackoff(ctx context.Context, config *RetryConfig, fn RetryFunc) *RetryResult {
	logger := logging.FromContext(ctx)
	start := time.Now()
	result := &RetryResult{}

	shouldRetry := config.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = apperrors.IsRetryable
	}
	jitter := config.jitter
	if jitter == nil {
		jitter = fullJitter
	}

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		err := fn(ctx, attempt)
		if err == nil {
			result.Success = true
			result.LastError = nil
			result.TotalDuration = time.Since(start)
			if attempt > 1 {
				logger.WithFields(map[string]interface{}{
					"attempts":      attempt,
					"totalDuration": result.TotalDuration.String(),
				}).Info("Operation succeeded after retry")
			}
			return result
		}
		result.LastError = err

		if !shouldRetry(err) {
			logger.WithError(err).WithField("attempt", attempt).Warn("Operation failed with non-retryable error")
			break
		}
		if attempt >= config.MaxAttempts {
			logger.WithError(err).WithField("attempts", attempt).Error("Operation failed after max retry attempts")
			break
		}

		delay := jitter(ceilingFor(config, attempt))
		if hint, ok := apperrors.RetryAfterHint(err); ok && hint > delay {
			delay = hint
		}

		logger.WithError(err).WithFields(map[string]interface{}{
			"attempt":     attempt,
			"maxAttempts": config.MaxAttempts,
			"delay":       delay.String(),
		}).Warn("Operation failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(start)
			return result
		}
	}

	result.TotalDuration = time.Since(start)
	return result
}

// ceilingFor is InitialDelay * Multiplier^(attempt-1), capped at MaxDelay
func ceilingFor(config *RetryConfig, attempt int) time.Duration {
	d := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(attempt-1))
	if d > float64(config.MaxDelay) || math.IsInf(d, 0) {
		d = float64(config.MaxDelay)
	}
	return time.Duration(d)
}

// Do runs fn under config and returns the last error on failure
func Do(ctx context.Context, config *RetryConfig, fn RetryFunc) error {
	result := WithExponentialBackoff(ctx, config, fn)
	if !result.Success {
		return fmt.Errorf("operation failed after %d attempts: %w", result.Attempts, result.LastError)
	}
	return nil
}
