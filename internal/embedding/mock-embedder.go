package embedding

import (
	"context"
	"strings"

	"github.com/hyperjump/wtm/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests and development. It hashes
// character bigrams of the lowercased text into a fixed-dimension vector, so the
// same text always gets the same embedding and names sharing fragments score higher.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns a deterministic unit-length embedding of text.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb := make([]float32, e.dimensions)
	for _, word := range SplitWords(strings.ToLower(text)) {
		runes := []rune(word)
		if len(runes) == 1 {
			e.add(emb, word)
			continue
		}
		for i := 0; i+1 < len(runes); i++ {
			e.add(emb, string(runes[i:i+2]))
		}
	}
	// Text with no words still maps to a non-zero vector.
	emb[HashString(text)%e.dimensions] += 0.01
	utils.NormalizeL2(emb)
	return emb, nil
}

func (e *MockEmbedder) add(emb []float32, gram string) {
	h := HashString(gram)
	sign := float32(1)
	if (h/e.dimensions)%2 == 1 {
		sign = -1
	}
	emb[h%e.dimensions] += sign
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
