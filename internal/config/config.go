package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/stupiduntilnot/chatrelay/internal/anthropic"
	"github.com/stupiduntilnot/chatrelay/internal/openai"
)

// Provider names accepted in RELAY_MODEL_PROVIDER.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderDummy     = "dummy"
)

// Config holds the relay's process configuration. Keys are the lower-cased
// environment variable names so the same key works in the environment and in
// a .env file.
type Config struct {
	TelegramBotToken string `mapstructure:"telegram_bot_token"`
	TelegramAPIURL   string `mapstructure:"telegram_api_url"`

	ModelProvider string `mapstructure:"relay_model_provider"`
	Model         string `mapstructure:"relay_model"`

	OpenAIAPIKey  string `mapstructure:"openai_api_key"`
	OpenAIBaseURL string `mapstructure:"openai_base_url"`

	AnthropicAPIKey    string `mapstructure:"anthropic_api_key"`
	AnthropicBaseURL   string `mapstructure:"anthropic_base_url"`
	AnthropicMaxTokens int    `mapstructure:"anthropic_max_tokens"`

	SystemPrompt     string        `mapstructure:"relay_system_prompt"`
	RequestTimeout   time.Duration `mapstructure:"relay_request_timeout"`
	MaxRetries       int           `mapstructure:"relay_max_retries"`
	BreakerThreshold int           `mapstructure:"relay_breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"relay_breaker_cooldown"`
	JournalPath      string        `mapstructure:"relay_journal_path"`
	DummyScript      string        `mapstructure:"relay_dummy_script"`

	LogLevel  string `mapstructure:"relay_log_level"`
	LogFormat string `mapstructure:"relay_log_format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram_bot_token", "")
	v.SetDefault("telegram_api_url", "")
	v.SetDefault("relay_model_provider", ProviderOpenAI)
	v.SetDefault("relay_model", "")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_base_url", openai.DefaultBaseURL)
	v.SetDefault("anthropic_api_key", "")
	v.SetDefault("anthropic_base_url", anthropic.DefaultBaseURL)
	v.SetDefault("anthropic_max_tokens", anthropic.DefaultMaxTokens)
	v.SetDefault("relay_system_prompt", "")
	v.SetDefault("relay_request_timeout", "60s")
	v.SetDefault("relay_max_retries", 2)
	v.SetDefault("relay_breaker_threshold", 5)
	v.SetDefault("relay_breaker_cooldown", "30s")
	v.SetDefault("relay_journal_path", "")
	v.SetDefault("relay_dummy_script", "ok")
	v.SetDefault("relay_log_level", "info")
	v.SetDefault("relay_log_format", "console")
}

// Load reads configuration from the environment, falling back to envFile
// (dotenv syntax) and then to defaults. A missing envFile is not an error.
func Load(envFile string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if envFile != "" {
		_, err := os.Stat(envFile)
		switch {
		case err == nil:
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("failed to read env file %s: %w", envFile, err)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return Config{}, fmt.Errorf("failed to stat env file %s: %w", envFile, err)
		}
	}

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ModelProvider = strings.ToLower(strings.TrimSpace(cfg.ModelProvider))
	if cfg.Model == "" {
		cfg.Model = defaultModel(cfg.ModelProvider)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaultModel(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return anthropic.DefaultModel
	case ProviderDummy:
		return "dummy"
	default:
		return openai.DefaultModel
	}
}

func (c Config) validate() error {
	switch c.ModelProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required in environment when RELAY_MODEL_PROVIDER=openai")
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required in environment when RELAY_MODEL_PROVIDER=anthropic")
		}
		if c.AnthropicMaxTokens <= 0 {
			return fmt.Errorf("ANTHROPIC_MAX_TOKENS must be > 0, got %d", c.AnthropicMaxTokens)
		}
	case ProviderDummy:
	default:
		return fmt.Errorf("RELAY_MODEL_PROVIDER %q is not one of openai, anthropic, dummy", c.ModelProvider)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("RELAY_REQUEST_TIMEOUT must be > 0, got %s", c.RequestTimeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("RELAY_MAX_RETRIES must be >= 0, got %d", c.MaxRetries)
	}
	if c.BreakerThreshold < 0 {
		return fmt.Errorf("RELAY_BREAKER_THRESHOLD must be >= 0, got %d", c.BreakerThreshold)
	}
	if c.BreakerThreshold > 0 && c.BreakerCooldown <= 0 {
		return fmt.Errorf("RELAY_BREAKER_COOLDOWN must be > 0, got %s", c.BreakerCooldown)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("RELAY_LOG_FORMAT %q is not one of console, json", c.LogFormat)
	}
	return nil
}

// RequireTelegram reports whether the Telegram transport can start.
func (c Config) RequireTelegram() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required in environment to serve Telegram")
	}
	return nil
}
