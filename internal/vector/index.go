// Package vector provides an exact cosine-similarity index over int64-keyed vectors.
package vector

import (
	"context"
	"errors"
)

var (
	// ErrInvalidQuery is returned for empty, wrong-dimension, zero-magnitude or non-finite queries.
	ErrInvalidQuery = errors.New("invalid query vector")
	// ErrDimensionMismatch is returned when a stored vector has the wrong length.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Index defines vector storage and similarity search.
type Index interface {
	Upsert(ctx context.Context, ids []int64, vectors [][]float32) error
	Replace(ctx context.Context, ids []int64, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int, minScore float64) ([]Result, error)
	Remove(ctx context.Context, ids []int64) error
	Save(path string) error
	Load(path string) error
	Size() int
	Dimensions() int
	Close() error
}

// Result is a single search hit. Score is the cosine similarity in [-1, 1].
type Result struct {
	ID    int64
	Score float64
}
