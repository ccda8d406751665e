// Package keyword provides lexical lookup of catalog foods by name.
package keyword

import (
	"context"

	"github.com/hyperjump/wtm/internal/models"
)

// SearchOptions optional parameters for name search. Nil means use defaults.
type SearchOptions struct {
	// NameBoost multiplies the score contribution from matches in the name fields.
	// Values > 1 make name matches rank above ingredient matches. Use 1.0 for no boost.
	NameBoost float64
	// Fuzzy enables typo tolerant matching of each query term.
	Fuzzy bool
	// Fuzziness is the maximum edit distance for fuzzy matching (1 or 2). Default 1.
	Fuzziness int
}

// NameIndex indexes food names for keyword lookup.
type NameIndex interface {
	IndexFood(ctx context.Context, food *models.Food) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]Hit, error)
	Delete(ctx context.Context, foodID int64) error
	// Rebuild replaces the index contents with foods.
	Rebuild(ctx context.Context, foods []*models.Food) error
	DocCount() (uint64, error)
	Close() error
}

// Hit is a single name lookup result.
type Hit struct {
	FoodID int64   `json:"food_id"`
	Name   string  `json:"food_name"`
	Score  float64 `json:"score"`
}

// TermDictionary exposes the indexed vocabulary for suggestions.
type TermDictionary interface {
	AllTerms() ([]string, error)
	TermFrequency(term string) (int, error)
}
