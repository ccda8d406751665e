package catalog

import (
	"math"

	"github.com/hyperjump/wtm/internal/vector"
)

func validateQuery(q []float32, dims int) error {
	return vector.ValidateQuery(q, dims)
}

// clampSimilarity keeps database float noise inside [-1, 1].
func clampSimilarity(s float64) float64 {
	return math.Max(-1, math.Min(1, s))
}
