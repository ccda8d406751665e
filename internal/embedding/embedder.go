// Package embedding turns text into fixed-dimension vectors for catalog matching.
package embedding

import (
	"context"
	"errors"
)

// Embedder produces vector embeddings for text. Implementations are backends
// wrapped by Provider; Dimensions is fixed once the backend is constructed.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

var (
	// ErrModelUnavailable is returned by every call once the model failed to load.
	ErrModelUnavailable = errors.New("embedding model unavailable")
	// ErrEncodingFailure is returned when a single text could not be embedded.
	ErrEncodingFailure = errors.New("embedding encoding failed")
)
