package vector

import (
	"fmt"
	"math"

	"github.com/hyperjump/wtm/pkg/utils"
)

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// CosineSimilarity returns the cosine of the angle between a and b in [-1, 1].
// It fails on empty or mismatched inputs; a zero-magnitude input yields 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, fmt.Errorf("input vectors cannot be empty")
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimensions do not match: %d vs %d", len(a), len(b))
	}
	na, nb := utils.L2Norm(a), utils.L2Norm(b)
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return clamp(InnerProduct(a, b) / (na * nb)), nil
}

// ValidateQuery checks that q can be compared against vectors of length dims.
func ValidateQuery(q []float32, dims int) error {
	if len(q) == 0 {
		return fmt.Errorf("%w: empty", ErrInvalidQuery)
	}
	if len(q) != dims {
		return fmt.Errorf("%w: got %d components, want %d", ErrInvalidQuery, len(q), dims)
	}
	if !utils.AllFinite(q) {
		return fmt.Errorf("%w: non-finite component", ErrInvalidQuery)
	}
	if utils.L2Norm(q) == 0 {
		return fmt.Errorf("%w: zero magnitude", ErrInvalidQuery)
	}
	return nil
}

// unit returns a normalized copy of v, or nil if v has zero magnitude or non-finite components.
func unit(v []float32) []float32 {
	if !utils.AllFinite(v) {
		return nil
	}
	n := utils.L2Norm(v)
	if n == 0 || math.IsInf(n, 0) {
		return nil
	}
	out := make([]float32, len(v))
	inv := 1 / n
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

func clamp(s float64) float64 {
	return math.Max(-1, math.Min(1, s))
}
