package llm

import (
	"fmt"
	"os"

	"github.com/armchr/testgen/internal/config"
	"go.uber.org/zap"
)

// NewProvider creates the bare provider client selected by cfg, without retries.
func NewProvider(cfg config.LLMConfig, logger *zap.Logger) (LLMService, error) {
	cfg = cfg.GetDefaults()

	switch Provider(cfg.Provider) {
	case ProviderOllama:
		return NewOllamaLLM(OllamaConfig{
			APIURL:  cfg.URL,
			Model:   cfg.Model,
			NumCtx:  cfg.NumCtx,
			Timeout: cfg.Timeout,
		}, logger)

	case ProviderClaude:
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("Claude API key not provided (set llm.api_key in config or ANTHROPIC_API_KEY env var)")
		}
		return NewClaudeLLM(ClaudeConfig{
			APIKey:  apiKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		}, logger)

	case ProviderOpenAI:
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("OpenAI API key not provided (set llm.api_key in config or OPENAI_API_KEY env var)")
		}
		return NewOpenAILLM(OpenAIConfig{
			APIKey:  apiKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		}, logger)

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// NewLLMService creates the configured provider wrapped in a RetryingLLM.
func NewLLMService(cfg config.LLMConfig, logger *zap.Logger) (*RetryingLLM, error) {
	provider, err := NewProvider(cfg, logger)
	if err != nil {
		return nil, err
	}
	cfg = cfg.GetDefaults()

	logger.Info("LLM service ready",
		zap.String("provider", provider.Name()),
		zap.String("model", provider.ModelName()),
		zap.Int("max_retries", cfg.MaxRetries))
	return NewRetryingLLM(provider, cfg.MaxRetries, cfg.RetryDelay, logger), nil
}

// OptionsFromConfig builds generation options from the configured sampling settings.
func OptionsFromConfig(cfg config.LLMConfig) GenerateOptions {
	cfg = cfg.GetDefaults()
	opts := DefaultGenerateOptions()
	opts.Temperature = cfg.Temperature
	opts.NumCtx = cfg.NumCtx
	return opts
}
