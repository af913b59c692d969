// Package retry provides exponential backoff with jitter for transient
// upstream failures.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// Config controls the backoff schedule.
type Config struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // delay before the first retry
	MaxDelay    time.Duration // cap on any single delay
	Multiplier  float64       // growth factor between retries
	Jitter      bool          // randomize each delay by up to 25%
}

// DefaultConfig suits short HTTP calls against a public API.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// LLMConfig allows for slower model backends: longer initial delay, higher
// cap, steeper growth.
func LLMConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    60 * time.Second,
		Multiplier:  2.5,
		Jitter:      true,
	}
}

// Do runs fn until it succeeds, fails permanently, or attempts run out.
// retryable decides which errors are worth another attempt; a nil retryable
// retries everything. The last error is returned unwrapped so callers can
// still match on sentinel and typed errors.
func Do(ctx context.Context, cfg Config, op string, fn func() error, retryable func(error) bool) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := cfg.delay(attempt)
			log.Warn().
				Str("op", op).
				Int("attempt", attempt+1).
				Dur("delay", delay).
				Err(lastErr).
				Msg("retrying after transient failure")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// delay computes the backoff for the given retry attempt (1-based).
func (cfg Config) delay(attempt int) time.Duration {
	d := time.Duration(float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt-1)))
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	if cfg.Jitter && d > 0 {
		d += time.Duration(rand.Int63n(int64(d) / 4))
	}
	return d
}
