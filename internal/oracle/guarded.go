package oracle

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/hsiehdog/travel-coordination-back/internal/resilience"
)

// GuardConfig bounds every oracle call.
type GuardConfig struct {
	// Timeout caps a single attempt. Zero disables the per-call bound.
	Timeout time.Duration
	// RequestsPerMinute feeds a token bucket. Zero disables limiting.
	RequestsPerMinute int
	Retry             resilience.RetryConfig
	Breaker           resilience.BreakerConfig
}

// Guarded decorates a Gateway with a per-call timeout, a rate limiter,
// transient-error retry and a circuit breaker. Transport retries happen
// below the structured-output validator and do not consume its repair
// attempt.
type Guarded struct {
	next    Gateway
	timeout time.Duration
	limiter *rate.Limiter
	retry   resilience.RetryConfig
	breaker *resilience.Breaker
}

// NewGuarded wraps next.
func NewGuarded(next Gateway, cfg GuardConfig) *Guarded {
	g := &Guarded{
		next:    next,
		timeout: cfg.Timeout,
		retry:   cfg.Retry,
	}
	if cfg.RequestsPerMinute > 0 {
		g.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestsPerMinute)
	}
	if g.retry.OnRetry == nil {
		g.retry.OnRetry = resilience.RetryLogger("oracle", "complete")
	}

	breakerCfg := cfg.Breaker
	if breakerCfg.Name == "" {
		breakerCfg.Name = "oracle"
	}
	if breakerCfg.Counts == nil {
		breakerCfg.Counts = func(err error) bool { return !errors.Is(err, context.Canceled) }
	}
	g.breaker = resilience.NewBreaker(breakerCfg)
	return g
}

// Complete implements Gateway. Any failure other than cancellation of ctx
// is reported as an *UnavailableError.
func (g *Guarded) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	text, err := resilience.DoVal(ctx, g.retry, func(ctx context.Context) (string, error) {
		var out string
		err := g.breaker.Call(ctx, func(ctx context.Context) error {
			var err error
			out, err = g.attempt(ctx, systemPrompt, userPrompt)
			return err
		})
		return out, err
	})
	if err == nil {
		return text, nil
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return "", err
	}
	return "", &UnavailableError{Err: err}
}

func (g *Guarded) attempt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	return g.next.Complete(ctx, systemPrompt, userPrompt)
}

// UnavailableError carries the last transport failure. It matches
// ErrUnavailable under errors.Is.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return ErrUnavailable.Error() + ": " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrUnavailable.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}
