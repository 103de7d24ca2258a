package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"
)

var (
	// ErrInvalidConfig is returned by constructors for unusable settings.
	ErrInvalidConfig = errors.New("invalid rate limit configuration")
	// ErrBackendUnavailable wraps storage failures from the Redis limiter.
	ErrBackendUnavailable = errors.New("rate limit backend unavailable")
)

// Config sets the budget: at most Limit calls per Window per key.
type Config struct {
	Limit  int           `yaml:"limit" toml:"limit"`
	Window time.Duration `yaml:"window" toml:"window"`
	// SweepInterval is how often Memory drops expired windows.
	SweepInterval time.Duration `yaml:"sweep_interval" toml:"sweep_interval"`
}

// Validate rejects non-positive limits and durations.
func (c Config) Validate() error {
	if c.Limit <= 0 || c.Window <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is zero when Allowed, otherwise the time until the
	// window resets.
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

// Limiter counts one call against key and reports whether it is allowed.
// Denied calls do not consume budget.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}
