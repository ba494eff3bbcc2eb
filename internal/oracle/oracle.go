// Package oracle is the single network boundary to the external reasoning
// model. A Gateway turns a system prompt and a user prompt into raw text;
// nothing about the shape of that text is assumed here.
package oracle

import (
	"context"

	"github.com/rotisserie/eris"
)

// Gateway sends one prompt pair to the oracle and returns its raw text.
type Gateway interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

// Complete implements Gateway.
func (f GatewayFunc) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f(ctx, systemPrompt, userPrompt)
}

// ErrUnavailable is returned when the oracle could not produce a response:
// transport retries were exhausted, the call timed out, or the circuit is
// open.
var ErrUnavailable = eris.New("oracle: unavailable")

type purposeKey struct{}

// WithPurpose tags ctx with a label used for cost attribution logs.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey{}, purpose)
}

// PurposeFrom returns the label set by WithPurpose, or "unspecified".
func PurposeFrom(ctx context.Context) string {
	if p, ok := ctx.Value(purposeKey{}).(string); ok && p != "" {
		return p
	}
	return "unspecified"
}
