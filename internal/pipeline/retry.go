package pipeline

import (
	"context"
	"math"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// RetryConfig defines backoff for operations that can fail transiently
type RetryConfig struct {
	MaxAttempts       int           `json:"max_attempts" yaml:"max_attempts"`
	InitialDelay      time.Duration `json:"initial_delay" yaml:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay" yaml:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier" yaml:"backoff_multiplier"`
}

// DefaultExportRetry covers SQLite writers contending for the same database file
var DefaultExportRetry = RetryConfig{
	MaxAttempts:       4,
	InitialDelay:      50 * time.Millisecond,
	MaxDelay:          time.Second,
	BackoffMultiplier: 2.0,
}

// delay returns the wait before the given attempt (1-based, attempt > 1)
func (c RetryConfig) delay(attempt int) time.Duration {
	d := time.Duration(float64(c.InitialDelay) * math.Pow(c.BackoffMultiplier, float64(attempt-2)))
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// withRetry runs fn until it succeeds, returns a permanent error, attempts run
// out or ctx is done.
func withRetry(ctx context.Context, cfg RetryConfig, logger log.Logger, op string, fn func() error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			d := cfg.delay(attempt)
			level.Warn(logger).Log("msg", "retrying", "op", op, "attempt", attempt, "max_attempts", attempts, "delay", d, "err", err)
			select {
			case <-ctx.Done():
				return errors.Wrapf(ctx.Err(), "%s: gave up waiting to retry", op)
			case <-time.After(d):
			}
		}
		if err = fn(); err == nil || !isRetryable(err) {
			return err
		}
	}
	return errors.Wrapf(err, "%s failed after %d attempts", op, attempts)
}

// isRetryable reports lock contention; everything else is permanent
func isRetryable(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}
