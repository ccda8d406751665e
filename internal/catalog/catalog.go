// Package catalog answers nearest-neighbor queries over the embedded food catalog.
package catalog

import (
	"context"
	"errors"

	"github.com/hyperjump/wtm/internal/models"
	"github.com/hyperjump/wtm/internal/vector"
)

var (
	// ErrInvalidQueryVector is returned for empty, wrong-dimension, zero-magnitude
	// or non-finite query vectors, before any comparison happens.
	ErrInvalidQueryVector = vector.ErrInvalidQuery
	// ErrCatalogUnavailable is returned when the backing store cannot be read.
	ErrCatalogUnavailable = errors.New("catalog unavailable")
)

// Index is a read-only similarity search over foods that carry an embedding.
//
// Search returns at most topK candidates whose cosine similarity to query is at
// least minSimilarity, ordered by similarity descending and then food ID
// ascending. Foods whose embedding length differs from the catalog dimension
// never participate. topK <= 0 yields an empty result.
type Index interface {
	Search(ctx context.Context, query []float32, topK int, minSimilarity float64) ([]models.MatchCandidate, error)
	Dimensions() int
}

// Refresher is implemented by catalogs that cache or mirror the food store and
// must be told when embeddings change.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Stats summarizes a catalog for status reporting.
type Stats struct {
	Backend     string `json:"backend"`
	Dimensions  int    `json:"dimensions"`
	Size        int    `json:"size"`
	RefreshedAt string `json:"refreshed_at,omitempty"`
}

// StatsReporter is implemented by catalogs that can describe themselves.
type StatsReporter interface {
	Stats(ctx context.Context) (Stats, error)
}
