package store

import (
	"context"
	"errors"
	"time"

	"github.com/hsiehdog/travel-coordination-back/internal/resilience"
)

// ConflictRetry retries a transaction once after a fingerprint conflict.
var ConflictRetry = resilience.RetryConfig{
	MaxAttempts:    2,
	InitialBackoff: 25 * time.Millisecond,
	MaxBackoff:     100 * time.Millisecond,
	Multiplier:     2,
	JitterFraction: 0.5,
	ShouldRetry: func(err error) bool {
		return errors.Is(err, ErrConflict)
	},
	OnRetry: resilience.RetryLogger("store", "conflict"),
}

// RetryOnConflict runs fn, running it once more if it fails with
// ErrConflict. fn must re-read whatever it writes.
func RetryOnConflict(ctx context.Context, fn func(ctx context.Context) error) error {
	return resilience.Do(ctx, ConflictRetry, fn)
}
