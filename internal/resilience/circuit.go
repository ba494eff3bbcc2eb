package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrCircuitOpen rejects a call while the breaker is cooling down.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// BreakerConfig configures a Breaker. Zero Failures or Cooldown fall back
// to 5 failures and 30 seconds.
type BreakerConfig struct {
	Name     string
	Failures int
	Cooldown time.Duration
	// Counts decides which errors count toward opening. Nil counts all.
	Counts func(err error) bool
}

// Breaker stops calling a failing dependency after Failures consecutive
// counted errors. Once Cooldown has passed, calls go through again. The
// first success closes it and the first counted error reopens it.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	failures int
	openedAt time.Time // zero while closed
	probing  bool
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Failures <= 0 {
		cfg.Failures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Call runs fn unless the breaker is open, and records its outcome.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	b.settle(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openedAt.IsZero() {
		return nil
	}
	if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
		return ErrCircuitOpen
	}
	if !b.probing {
		b.probing = true
		b.logState("half-open")
	}
	return nil
}

func (b *Breaker) settle(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	counted := err != nil && (b.cfg.Counts == nil || b.cfg.Counts(err))
	switch {
	case !counted:
		b.failures = 0
		if b.probing {
			b.openedAt, b.probing = time.Time{}, false
			b.logState("closed")
		}
	case b.probing:
		b.openedAt, b.probing = b.now(), false
		b.logState("open")
	default:
		b.failures++
		if b.openedAt.IsZero() && b.failures >= b.cfg.Failures {
			b.openedAt = b.now()
			b.logState("open")
		}
	}
}

// state reports "closed", "open" or "half-open".
func (b *Breaker) state() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.openedAt.IsZero():
		return "closed"
	case b.probing || b.now().Sub(b.openedAt) >= b.cfg.Cooldown:
		return "half-open"
	default:
		return "open"
	}
}

func (b *Breaker) logState(state string) {
	zap.L().Warn("circuit breaker state change",
		zap.String("breaker", b.cfg.Name),
		zap.String("state", state),
		zap.Int("consecutive_failures", b.failures),
	)
}
