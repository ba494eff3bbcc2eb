package oracle

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/hsiehdog/travel-coordination-back/internal/resilience"
)

// OpenAIGateway completes prompts with an OpenAI-compatible Chat Completions
// endpoint. JSON mode is requested since every caller expects JSON back.
type OpenAIGateway struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAIGateway creates a gateway. An empty baseURL uses the public API.
func NewOpenAIGateway(apiKey, baseURL, model string, maxTokens int64, temperature float64) *OpenAIGateway {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &OpenAIGateway{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: float32(temperature),
	}
}

// Complete implements Gateway.
func (g *OpenAIGateway) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", classify(ctx, err, openAIStatus(err), "oracle: openai")
	}

	zap.L().Info("oracle cost attribution",
		zap.String("model", resp.Model),
		zap.String("purpose", PurposeFrom(ctx)),
		zap.Int("input_tokens", resp.Usage.PromptTokens),
		zap.Int("output_tokens", resp.Usage.CompletionTokens),
	)

	if len(resp.Choices) == 0 {
		return "", resilience.NewTransientError(eris.Errorf("oracle: openai returned no choices for model %s", g.model), 0)
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
