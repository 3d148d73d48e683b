package retry

import (
	"context"
	"math"
	"time"
)

// Config describes a bounded exponential backoff policy.
type Config struct {
	MaxAttempts int           // total attempts including the first (default: 3)
	BaseDelay   time.Duration // delay after the first failed attempt (default: 1s)
	MaxDelay    time.Duration // upper bound for any single delay, 0 means unbounded
	Multiplier  float64       // growth factor per attempt (default: 2.0)
}

// DefaultConfig returns the policy used for outbound LLM calls: 1s, 2s, 4s, ...
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
	}
}

// Normalize fills zero or invalid fields from DefaultConfig.
func (c Config) Normalize() Config {
	def := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.MaxDelay < 0 {
		c.MaxDelay = 0
	}
	if c.Multiplier < 1 {
		c.Multiplier = def.Multiplier
	}
	return c
}

// Delay returns the wait after the zero-based attempt that just failed:
// BaseDelay * Multiplier^attempt, capped at MaxDelay.
func (c Config) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(attempt))
	if c.MaxDelay > 0 && delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if delay > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep blocks for d unless ctx ends first, in which case it returns ctx.Err().
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
