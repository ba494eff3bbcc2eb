package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Oracle    OracleConfig    `yaml:"oracle" mapstructure:"oracle"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Patch     PatchConfig     `yaml:"patch" mapstructure:"patch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// OracleConfig selects and bounds the external reasoning oracle.
type OracleConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerMinute int     `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature       float64 `yaml:"temperature" mapstructure:"temperature"`
	RetryAttempts     int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	BreakerFailures   int     `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs  int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// OpenAIConfig holds OpenAI-compatible API settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// PatchConfig tunes routing between reconstruction and patching.
type PatchConfig struct {
	// MaxPatchChars is the update length at which an ingest is treated as a
	// full dump and routed to reconstruction.
	MaxPatchChars   int `yaml:"max_patch_chars" mapstructure:"max_patch_chars"`
	PendingTTLHours int `yaml:"pending_ttl_hours" mapstructure:"pending_ttl_hours"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TRAVEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("oracle.provider", "anthropic")
	v.SetDefault("oracle.timeout_secs", 90)
	v.SetDefault("oracle.requests_per_minute", 60)
	v.SetDefault("oracle.max_tokens", 8192)
	v.SetDefault("oracle.temperature", 0.0)
	v.SetDefault("oracle.retry_attempts", 3)
	v.SetDefault("oracle.breaker_failures", 5)
	v.SetDefault("oracle.breaker_reset_secs", 30)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("openai.key", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("patch.max_patch_chars", 2000)
	v.SetDefault("patch.pending_ttl_hours", 72)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"http://localhost:*"})
	v.SetDefault("store.database_url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings needed to run the service are present.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required for postgres (TRAVEL_STORE_DATABASE_URL)")
		}
	case "sqlite":
	default:
		return eris.Errorf("config: unsupported store driver %q", c.Store.Driver)
	}

	switch c.Oracle.Provider {
	case "anthropic":
		if c.Anthropic.Key == "" {
			return eris.New("config: anthropic.key is required (TRAVEL_ANTHROPIC_KEY)")
		}
	case "openai":
		if c.OpenAI.Key == "" {
			return eris.New("config: openai.key is required (TRAVEL_OPENAI_KEY)")
		}
	default:
		return eris.Errorf("config: unsupported oracle provider %q", c.Oracle.Provider)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
