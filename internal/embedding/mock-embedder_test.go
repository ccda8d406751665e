package embedding

import (
	"context"
	"testing"

	"github.com/hyperjump/wtm/pkg/utils"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestMockEmbedder_deterministicUnitVectors(t *testing.T) {
	e := NewMockEmbedder(64)
	ctx := context.Background()
	a, err := e.Embed(ctx, "Special Pizza")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := e.Embed(ctx, "Special Pizza")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("embedding should be deterministic")
		}
	}
	if n := utils.L2Norm(a); n < 0.999 || n > 1.001 {
		t.Errorf("expected unit norm, got %v", n)
	}
	if e.Dimensions() != 64 {
		t.Errorf("Dimensions: got %d", e.Dimensions())
	}
	if NewMockEmbedder(0).Dimensions() != 384 {
		t.Error("non-positive dimensions should default to 384")
	}
}

func TestMockEmbedder_sharedFragmentsScoreHigher(t *testing.T) {
	e := NewMockEmbedder(256)
	ctx := context.Background()
	pasta, _ := e.Embed(ctx, "맛있는 파스타")
	pasta2, _ := e.Embed(ctx, "파스타")
	cola, _ := e.Embed(ctx, "cola")
	if dot(pasta, pasta2) <= dot(pasta, cola) {
		t.Errorf("expected related names to be closer: %v vs %v", dot(pasta, pasta2), dot(pasta, cola))
	}
}

func TestMockEmbedder_canceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMockEmbedder(8).Embed(ctx, "x"); err == nil {
		t.Error("expected context error")
	}
}

func TestMockEmbedder_EmbedBatch(t *testing.T) {
	e := NewMockEmbedder(8)
	out, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || len(out[0]) != 8 {
		t.Errorf("unexpected batch shape: %d", len(out))
	}
}
