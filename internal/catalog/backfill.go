package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/wtm/internal/storage"
	"github.com/hyperjump/wtm/pkg/utils"
)

// TextEmbedder converts text to a vector. embedding.Provider implements it.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Backfiller computes embeddings for foods that do not have one yet and
// refreshes the catalog afterwards.
type Backfiller struct {
	store           storage.Storage
	embedder        TextEmbedder
	refresher       Refresher
	withIngredients bool
	batchSize       int
	logger          *zap.Logger
}

// BackfillOptions controls one backfill run.
type BackfillOptions struct {
	// Recompute clears every stored embedding first, e.g. after a model change.
	Recompute bool
}

// BackfillReport summarizes a backfill run.
type BackfillReport struct {
	Embedded int           `json:"embedded"`
	Failed   int           `json:"failed"`
	Cleared  int64         `json:"cleared"`
	Duration time.Duration `json:"duration_ns"`
}

// NewBackfiller returns a backfiller. refresher may be nil.
func NewBackfiller(store storage.Storage, embedder TextEmbedder, refresher Refresher, withIngredients bool, logger *zap.Logger) *Backfiller {
	return &Backfiller{
		store:           store,
		embedder:        embedder,
		refresher:       refresher,
		withIngredients: withIngredients,
		batchSize:       100,
		logger:          utils.OrNop(logger),
	}
}

// Run embeds every food missing an embedding. A food that fails to embed is
// logged, counted and left for the next run. Store errors and cancellation end the run.
func (b *Backfiller) Run(ctx context.Context, opts BackfillOptions) (BackfillReport, error) {
	start := time.Now()
	var report BackfillReport

	if opts.Recompute {
		n, err := b.store.ClearEmbeddings(ctx)
		if err != nil {
			return report, fmt.Errorf("clear embeddings: %w", err)
		}
		report.Cleared = n
	}

	var afterID int64
	for {
		foods, err := b.store.ListFoodsMissingEmbedding(ctx, afterID, b.batchSize)
		if err != nil {
			return report, fmt.Errorf("list foods missing embedding: %w", err)
		}
		if len(foods) == 0 {
			break
		}
		for _, f := range foods {
			afterID = f.ID
			vec, err := b.embedder.Embed(ctx, f.EmbeddingText(b.withIngredients))
			if err != nil {
				if ctx.Err() != nil {
					return report, ctx.Err()
				}
				report.Failed++
				b.logger.Warn("failed to embed food", zap.Int64("food_id", f.ID), zap.String("name", f.Name), zap.Error(err))
				continue
			}
			if err := b.store.SetFoodEmbedding(ctx, f.ID, vec); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					// Deleted while the batch was in flight.
					continue
				}
				return report, fmt.Errorf("store embedding for food %d: %w", f.ID, err)
			}
			report.Embedded++
		}
	}

	if b.refresher != nil {
		if err := b.refresher.Refresh(ctx); err != nil {
			return report, fmt.Errorf("refresh catalog: %w", err)
		}
	}
	report.Duration = time.Since(start)
	b.logger.Info("backfill finished",
		zap.Int("embedded", report.Embedded),
		zap.Int("failed", report.Failed),
		zap.Duration("took", report.Duration))
	return report, nil
}
