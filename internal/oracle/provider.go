package oracle

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tordrt/fedquery/internal/config"
)

// Factory builds an oracle from the llm configuration section.
type Factory func(cfg config.LLMConfig, logger zerolog.Logger) (Oracle, error)

var providers = map[string]Factory{
	"openai": func(cfg config.LLMConfig, logger zerolog.Logger) (Oracle, error) {
		return NewOpenAIOracle(OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Planning:    cfg.Planning,
			Timeout:     cfg.Timeout,
			MaxRetries:  cfg.MaxRetries,
			RetryDelay:  cfg.RetryDelay,
		}, logger)
	},
	"mock": func(config.LLMConfig, zerolog.Logger) (Oracle, error) {
		return NewScripted(), nil
	},
}

// New builds the oracle named by cfg.Provider.
func New(cfg config.LLMConfig, logger zerolog.Logger) (Oracle, error) {
	f, ok := providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
	return f(cfg, logger)
}
