package embedding

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	ollamaLLM "github.com/tmc/langchaingo/llms/ollama"

	"github.com/hyperjump/wtm/pkg/utils"
)

// OllamaEmbedder embeds text with a model served by Ollama. The dimension is
// probed once at construction by embedding a short text.
type OllamaEmbedder struct {
	embedder   embeddings.Embedder
	dimensions int
}

// NewOllamaEmbedder connects to serverURL and probes the dimension of modelName.
func NewOllamaEmbedder(ctx context.Context, serverURL, modelName string) (*OllamaEmbedder, error) {
	if serverURL == "" {
		return nil, fmt.Errorf("ollama server URL cannot be empty")
	}
	if modelName == "" {
		return nil, fmt.Errorf("ollama model name cannot be empty")
	}

	llm, err := ollamaLLM.New(
		ollamaLLM.WithModel(modelName),
		ollamaLLM.WithServerURL(serverURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama embedder: %w", err)
	}
	return newOllamaEmbedder(ctx, embedder)
}

func newOllamaEmbedder(ctx context.Context, embedder embeddings.Embedder) (*OllamaEmbedder, error) {
	e := &OllamaEmbedder{embedder: embedder}
	probe, err := e.Embed(ctx, "menu")
	if err != nil {
		return nil, fmt.Errorf("failed to probe embedding dimension: %w", err)
	}
	if len(probe) == 0 {
		return nil, fmt.Errorf("model returned an empty embedding")
	}
	e.dimensions = len(probe)
	return e, nil
}

// Embed returns the unit-length embedding of text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	raw, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding using Ollama: %w", err)
	}
	out := make([]float32, len(raw))
	for i, v := range raw {
		out[i] = float32(v)
	}
	utils.NormalizeL2(out)
	return out, nil
}

// EmbedBatch embeds texts in one request.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	raw, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings using Ollama: %w", err)
	}
	out := make([][]float32, len(raw))
	for i, vec := range raw {
		out[i] = make([]float32, len(vec))
		for j, v := range vec {
			out[i][j] = float32(v)
		}
		utils.NormalizeL2(out[i])
	}
	return out, nil
}

// Dimensions returns the probed embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (e *OllamaEmbedder) Close() error {
	return nil
}
