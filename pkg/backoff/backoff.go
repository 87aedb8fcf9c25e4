// Package backoff provides exponential backoff and a bounded retry loop for
// establishing long-lived connections.
package backoff

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Defaults tuned for connection establishment rather than request retries.
const (
	DefaultInitial = 250 * time.Millisecond
	DefaultMax     = 8 * time.Second
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Initial time.Duration
	Max     time.Duration
}

// Exponential calculates exponential backoff for a given attempt.
// Attempt 1 returns initial, attempt 2 returns initial*2, etc.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial := DefaultInitial
	maxBackoff := DefaultMax
	if cfg != nil {
		if cfg.Initial > 0 {
			initial = cfg.Initial
		}
		if cfg.Max > 0 {
			maxBackoff = cfg.Max
		}
	}

	if attempt < 1 {
		return initial
	}
	d := float64(initial) * math.Pow(2.0, float64(attempt-1))
	if d > float64(maxBackoff) {
		d = float64(maxBackoff)
	}
	return time.Duration(d)
}

// Retry calls fn up to attempts times, sleeping with exponential backoff
// between failures. It stops early when ctx is done. onRetry, if not nil, is
// called before each sleep with the failed attempt number and its error.
func Retry(ctx context.Context, attempts int, cfg *Config, fn func(ctx context.Context) error, onRetry func(attempt int, err error)) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		if onRetry != nil {
			onRetry(attempt, lastErr)
		}

		timer := time.NewTimer(Exponential(attempt, cfg))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		case <-timer.C:
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
}
