package oracle

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/hsiehdog/travel-coordination-back/internal/resilience"
	"github.com/hsiehdog/travel-coordination-back/pkg/anthropic"
)

// AnthropicGateway completes prompts with the Anthropic Messages API. The
// system prompt is sent with an ephemeral cache breakpoint.
type AnthropicGateway struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicGateway creates a gateway over an Anthropic client.
func NewAnthropicGateway(client anthropic.Client, model string, maxTokens int64, temperature float64) *AnthropicGateway {
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &AnthropicGateway{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Complete implements Gateway.
func (g *AnthropicGateway) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	temp := g.temperature
	resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(systemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: userPrompt},
		},
		Temperature: &temp,
	})
	if err != nil {
		return "", classify(ctx, err, anthropic.StatusCode(err), "oracle: anthropic")
	}

	resp.Usage.LogCost(g.model, PurposeFrom(ctx))
	return resp.Text(), nil
}

// classify marks retryable failures as transient. Context cancellation is
// never retried; API errors are retried only for transient statuses; errors
// without a status are network failures and are retried.
func classify(ctx context.Context, err error, status int, msg string) error {
	if ctx.Err() != nil {
		return eris.Wrap(ctx.Err(), msg)
	}
	switch {
	case status == 0:
		return resilience.NewTransientError(eris.Wrap(err, msg), 0)
	case resilience.IsTransientHTTPStatus(status):
		return resilience.NewTransientError(eris.Wrapf(err, "%s: status %d", msg, status), status)
	default:
		return eris.Wrapf(err, "%s: status %d", msg, status)
	}
}
