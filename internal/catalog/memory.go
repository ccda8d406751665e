package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/wtm/internal/models"
	"github.com/hyperjump/wtm/internal/storage"
	"github.com/hyperjump/wtm/internal/vector"
)

// MemoryCatalog serves searches from an in-memory vector index built from the
// food store. Changes to the store become visible after the next Refresh.
type MemoryCatalog struct {
	store        storage.Storage
	dims         int
	snapshotPath string
	logger       *zap.Logger

	mu          sync.RWMutex
	index       *vector.MemoryIndex
	foods       map[int64]*models.Food
	refreshedAt time.Time
}

// NewMemoryCatalog returns an empty catalog over store for vectors of length dims.
func NewMemoryCatalog(store storage.Storage, dims int, opts ...Option) (*MemoryCatalog, error) {
	idx, err := vector.NewMemoryIndex(dims)
	if err != nil {
		return nil, err
	}
	o := applyOptions(opts)
	return &MemoryCatalog{
		store:        store,
		dims:         dims,
		snapshotPath: o.snapshotPath,
		logger:       o.logger,
		index:        idx,
		foods:        map[int64]*models.Food{},
	}, nil
}

// Open loads the snapshot, if any, and then refreshes from the store. A failed
// refresh is returned, but a loaded snapshot keeps serving in the meantime.
func (c *MemoryCatalog) Open(ctx context.Context) error {
	if c.snapshotPath != "" {
		if err := c.index.Load(c.snapshotPath); err != nil {
			c.logger.Warn("ignoring index snapshot", zap.String("path", c.snapshotPath), zap.Error(err))
		} else if n := c.index.Size(); n > 0 {
			c.logger.Info("loaded index snapshot", zap.String("path", c.snapshotPath), zap.Int("vectors", n))
		}
	}
	return c.Refresh(ctx)
}

// Refresh rebuilds the index from every embedded food in the store and swaps it in.
func (c *MemoryCatalog) Refresh(ctx context.Context) error {
	start := time.Now()
	foods, err := c.store.ListEmbeddedFoods(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}

	ids := make([]int64, 0, len(foods))
	vecs := make([][]float32, 0, len(foods))
	byID := make(map[int64]*models.Food, len(foods))
	skipped := 0
	for _, f := range foods {
		if len(f.Embedding) != c.dims {
			skipped++
			continue
		}
		ids = append(ids, f.ID)
		vecs = append(vecs, f.Embedding)
		byID[f.ID] = f
	}

	idx, err := vector.NewMemoryIndex(c.dims)
	if err != nil {
		return err
	}
	if err := idx.Replace(ctx, ids, vecs); err != nil {
		return err
	}

	c.mu.Lock()
	c.index = idx
	c.foods = byID
	c.refreshedAt = time.Now()
	c.mu.Unlock()

	if skipped > 0 {
		c.logger.Warn("skipped foods with mismatched embedding dimension",
			zap.Int("skipped", skipped), zap.Int("dimensions", c.dims))
	}
	c.logger.Info("catalog refreshed",
		zap.Int("foods", idx.Size()), zap.Duration("took", time.Since(start)))

	if c.snapshotPath != "" {
		if err := idx.Save(c.snapshotPath); err != nil {
			c.logger.Warn("failed to save index snapshot", zap.String("path", c.snapshotPath), zap.Error(err))
		}
	}
	return nil
}

// Run refreshes every interval until ctx is done. Failures are logged and retried on the next tick.
func (c *MemoryCatalog) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
				c.logger.Error("catalog refresh failed", zap.Error(err))
			}
		}
	}
}

// Search implements Index. Hits whose food has left the store (possible while
// serving a snapshot) are dropped and the index is asked for that many more.
func (c *MemoryCatalog) Search(ctx context.Context, query []float32, topK int, minSimilarity float64) ([]models.MatchCandidate, error) {
	c.mu.RLock()
	idx, foods := c.index, c.foods
	c.mu.RUnlock()

	looked := map[int64]*models.Food{}
	want := topK
	for {
		hits, err := idx.Search(ctx, query, want, minSimilarity)
		if err != nil {
			return nil, err
		}
		out := make([]models.MatchCandidate, 0, len(hits))
		for _, h := range hits {
			f, err := c.lookup(ctx, foods, looked, h.ID)
			if err != nil {
				return nil, err
			}
			if f != nil {
				out = append(out, models.MatchCandidate{Food: f, Similarity: h.Score})
			}
		}
		if len(out) >= topK || len(hits) < want {
			if len(out) > topK {
				out = out[:topK]
			}
			return out, nil
		}
		want = topK + len(hits) - len(out)
	}
}

// lookup resolves id against the refreshed food map and then the store.
// A food missing from the store yields nil without error.
func (c *MemoryCatalog) lookup(ctx context.Context, foods, looked map[int64]*models.Food, id int64) (*models.Food, error) {
	if f, ok := foods[id]; ok {
		return f, nil
	}
	if f, ok := looked[id]; ok {
		return f, nil
	}
	f, err := c.store.GetFood(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		looked[id] = nil
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	looked[id] = f
	return f, nil
}

// Dimensions returns the embedding length the catalog accepts.
func (c *MemoryCatalog) Dimensions() int {
	return c.dims
}

// Size returns the number of searchable foods.
func (c *MemoryCatalog) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index.Size()
}

// Stats implements StatsReporter.
func (c *MemoryCatalog) Stats(ctx context.Context) (Stats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Stats{Backend: "memory", Dimensions: c.dims, Size: c.index.Size()}
	if !c.refreshedAt.IsZero() {
		s.RefreshedAt = c.refreshedAt.Format(time.RFC3339)
	}
	return s, nil
}
