// Package retry runs an operation repeatedly until it succeeds, the
// attempt budget runs out, or the context is cancelled.
//
// Two strategies are provided: exponential backoff with jitter for
// network-facing operations, and a fixed short interval for polling a
// backend that is expected to converge quickly (for example waiting
// for a freshly delivered message to receive its UID).
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

type Config struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Jitter          bool
	MaxRetries      int
}

func DefaultConfig() Config {
	return Config{
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		Jitter:          true,
		MaxRetries:      5,
	}
}

// Fixed returns a config that retries up to attempts times with a
// constant interval and no jitter.
func Fixed(attempts int, interval time.Duration) Config {
	return Config{
		InitialInterval: interval,
		MaxInterval:     interval,
		Multiplier:      1.0,
		MaxRetries:      attempts - 1,
	}
}

func (c Config) delay(attempt int) time.Duration {
	if attempt <= 0 {
		return c.InitialInterval
	}
	interval := float64(c.InitialInterval) * math.Pow(c.Multiplier, float64(attempt-1))
	if interval > float64(c.MaxInterval) {
		interval = float64(c.MaxInterval)
	}
	d := time.Duration(interval)
	if c.Jitter && d > 1 {
		d = d/2 + time.Duration(rand.Int63n(int64(d/2)))
	}
	return d
}

// StopError halts retries immediately and surfaces the wrapped error.
type StopError struct {
	Err error
}

func (s StopError) Error() string { return s.Err.Error() }
func (s StopError) Unwrap() error { return s.Err }

// Stop wraps an error so Do gives up without further attempts.
func Stop(err error) error {
	return StopError{Err: err}
}

// Do runs fn until it returns nil, returns a StopError, the attempt
// budget is spent, or ctx is done.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		attempts++
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(cfg.delay(attempt)):
			}
		}
		err := fn()
		if err == nil {
			return nil
		}
		var stop StopError
		if errors.As(err, &stop) {
			return stop.Err
		}
		lastErr = err
	}
	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
