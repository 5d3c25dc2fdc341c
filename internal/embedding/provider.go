package embedding

import (
	"fmt"
	"time"

	"github.com/tordrt/fedquery/internal/config"
)

// Factory builds an embedder from the embedding configuration section.
type Factory func(cfg config.EmbeddingConfig) (Embedder, error)

var providers = map[string]Factory{
	"openai": func(cfg config.EmbeddingConfig) (Embedder, error) {
		return NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimension,
			Timeout:    cfg.Timeout,
			MaxRetries: 3,
			RetryDelay: time.Second,
		})
	},
	"hash": func(cfg config.EmbeddingConfig) (Embedder, error) {
		return NewHashEmbedder(cfg.Dimension), nil
	},
}

// New builds the embedder named by cfg.Provider.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	f, ok := providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
	return f(cfg)
}
