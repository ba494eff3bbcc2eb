package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig is an exponential backoff policy.
type RetryConfig struct {
	MaxAttempts    int // total attempts, including the first
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	JitterFraction float64 // each delay moves by up to ± this share

	// ShouldRetry defaults to IsTransient.
	ShouldRetry func(err error) bool
	// OnRetry is called with the number of the attempt that just failed.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig is the policy for oracle transport calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     20 * time.Second,
		Multiplier:     2,
		JitterFraction: 0.25,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
	if c.ShouldRetry == nil {
		c.ShouldRetry = IsTransient
	}
	return c
}

// backoff is the delay after the n-th failed attempt, counting from 0.
func (c RetryConfig) backoff(n int) time.Duration {
	d := float64(c.InitialBackoff)
	for i := 0; i < n && d < float64(c.MaxBackoff); i++ {
		d *= c.Multiplier
	}
	d = min(d, float64(c.MaxBackoff))
	if c.JitterFraction > 0 {
		d += d * c.JitterFraction * (2*rand.Float64() - 1)
	}
	return time.Duration(max(d, 0))
}

// Do calls fn until it succeeds, fails with an error the policy will not
// retry, runs out of attempts, or ctx ends. The last error is returned.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	cfg = cfg.normalized()
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil || attempt >= cfg.MaxAttempts || ctx.Err() != nil || !cfg.ShouldRetry(err) {
			return err
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}
		if !sleep(ctx, cfg.backoff(attempt-1)) {
			return err
		}
	}
}

// DoVal is Do for calls that produce a value.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, cfg, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err == nil {
			out = v
		}
		return err
	})
	return out, err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// RetryLogger returns an OnRetry callback that logs each failed attempt.
func RetryLogger(component, operation string) func(int, error) {
	return func(attempt int, err error) {
		zap.L().Warn(component+": retrying "+operation,
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
