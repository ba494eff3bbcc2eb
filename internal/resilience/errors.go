// Package resilience provides retry and circuit breaker primitives for the
// oracle gateway and for retryable store conflicts.
package resilience

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
)

// TransientError marks a failure as safe to retry. StatusCode is the HTTP
// status that caused it, or 0 for transport failures.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as transient.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsTransient reports whether another attempt could succeed. Caller
// cancellation never qualifies; an attempt that hit its own deadline does.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE)
}

// IsTransientHTTPStatus reports whether a provider status is worth retrying:
// request timeout, rate limiting, and any 5xx including Anthropic's 529.
func IsTransientHTTPStatus(status int) bool {
	return status == 408 || status == 429 || (status >= 500 && status <= 599)
}
