package oracle

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/hsiehdog/travel-coordination-back/internal/config"
	"github.com/hsiehdog/travel-coordination-back/internal/resilience"
	"github.com/hsiehdog/travel-coordination-back/pkg/anthropic"
)

// New builds the configured provider gateway wrapped in Guarded. It is meant
// to be called once at process start.
func New(cfg *config.Config) (Gateway, error) {
	var base Gateway
	switch cfg.Oracle.Provider {
	case "anthropic":
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("oracle: anthropic.key is required")
		}
		client := anthropic.NewClient(cfg.Anthropic.Key)
		base = NewAnthropicGateway(client, cfg.Anthropic.Model, cfg.Oracle.MaxTokens, cfg.Oracle.Temperature)
	case "openai":
		if cfg.OpenAI.Key == "" {
			return nil, eris.New("oracle: openai.key is required")
		}
		base = NewOpenAIGateway(cfg.OpenAI.Key, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, cfg.Oracle.MaxTokens, cfg.Oracle.Temperature)
	default:
		return nil, eris.Errorf("oracle: unsupported provider %q", cfg.Oracle.Provider)
	}

	return NewGuarded(base, guardConfig(cfg.Oracle)), nil
}

func guardConfig(oc config.OracleConfig) GuardConfig {
	retry := resilience.DefaultRetryConfig()
	if oc.RetryAttempts > 0 {
		retry.MaxAttempts = oc.RetryAttempts
	}
	return GuardConfig{
		Timeout:           time.Duration(oc.TimeoutSecs) * time.Second,
		RequestsPerMinute: oc.RequestsPerMinute,
		Retry:             retry,
		Breaker: resilience.BreakerConfig{
			Name:     "oracle",
			Failures: oc.BreakerFailures,
			Cooldown: time.Duration(oc.BreakerResetSecs) * time.Second,
		},
	}
}
