package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/wtm/internal/config"
)

// NewLoader returns a Loader that constructs the backend named by cfg.Provider.
func NewLoader(cfg config.EmbeddingConfig) Loader {
	return func(ctx context.Context) (Embedder, error) {
		switch cfg.Provider {
		case config.EmbeddingProviderONNX, "":
			var tok Tokenizer = &SimpleTokenizer{}
			if cfg.VocabPath != "" {
				wp, err := LoadWordPieceTokenizer(cfg.VocabPath, strings.Contains(cfg.ModelID, "uncased"))
				if err != nil {
					return nil, err
				}
				tok = wp
			}
			e, err := NewONNXEmbedder(ONNXOptions{
				ModelPath:  cfg.ModelPath,
				OutputName: cfg.OutputName,
				Pooling:    cfg.Pooling,
				Dimensions: cfg.Dimensions,
				MaxTokens:  cfg.MaxTokens,
				Tokenizer:  tok,
			})
			if err != nil {
				return nil, err
			}
			return e, nil
		case config.EmbeddingProviderOllama:
			e, err := NewOllamaEmbedder(ctx, cfg.OllamaURL, cfg.ModelID)
			if err != nil {
				return nil, err
			}
			return e, nil
		case config.EmbeddingProviderMock:
			return NewMockEmbedder(cfg.Dimensions), nil
		default:
			return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
		}
	}
}

// NewProviderFromConfig builds the process-wide provider for cfg.
func NewProviderFromConfig(cfg config.EmbeddingConfig, opts ...Option) *Provider {
	base := []Option{WithModelID(cfg.ModelID), WithCacheSize(cfg.CacheSize)}
	return NewProvider(NewLoader(cfg), append(base, opts...)...)
}
