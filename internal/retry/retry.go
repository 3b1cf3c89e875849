// Package retry provides exponential backoff polling used when waiting for
// on-chain transaction confirmation.
package retry

import (
	"context"
	"time"

	"github.com/portfolio-rebalancer/internal/logging"
)

// Config configures backoff behavior
type Config struct {
	MaxAttempts  int           // Maximum number of attempts
	InitialDelay time.Duration // Delay before the second attempt
	MaxDelay     time.Duration // Cap on the delay between attempts
	Multiplier   float64       // Multiplier for exponential backoff
}

// DefaultConfig returns the default backoff configuration.
// Pattern: 1s, 2s, 4s, 8s, 16s, capped at 30s.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Result contains information about the retry operation
type Result struct {
	Attempts      int
	Success       bool
	TotalDuration time.Duration
	LastError     error
}

// Func is an operation that can be retried. Returning nil stops the loop.
type Func func(ctx context.Context, attempt int) error

// WithExponentialBackoff executes fn until it succeeds, the attempt budget is
// exhausted, or the context is cancelled.
func WithExponentialBackoff(ctx context.Context, cfg *Config, fn Func) *Result {
	logger := logging.FromContext(ctx)
	start := time.Now()
	result := &Result{}

	delay := cfg.InitialDelay
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result.Attempts = attempt

		err := fn(ctx, attempt)
		if err == nil {
			result.Success = true
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

		if attempt >= cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(start)
			return result
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	result.TotalDuration = time.Since(start)
	logger.WithFields(map[string]interface{}{
		"attempts": result.Attempts,
		"error":    result.LastError.Error(),
	}).Warn("Operation failed after all retry attempts")
	return result
}
