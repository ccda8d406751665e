// Package matcher resolves parsed menu items to catalog foods.
package matcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/wtm/internal/catalog"
	"github.com/hyperjump/wtm/internal/menuparse"
	"github.com/hyperjump/wtm/internal/models"
	"github.com/hyperjump/wtm/pkg/utils"
)

// Embedder converts an item name to a query vector. embedding.Provider implements it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Resolver runs the match pipeline: parse, then per item embed and search.
// It only reads from the embedder and the catalog.
type Resolver struct {
	embedder  Embedder
	index     catalog.Index
	topK      int
	threshold float64
	workers   int
	logger    *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDefaults sets the topK and threshold used when a call does not override them.
func WithDefaults(topK int, threshold float64) Option {
	return func(r *Resolver) {
		r.topK = topK
		r.threshold = threshold
	}
}

// WithWorkers bounds how many items are resolved concurrently.
func WithWorkers(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.logger = utils.OrNop(l) }
}

// NewResolver returns a resolver with topK 3, threshold 0.7 and 4 workers unless overridden.
func NewResolver(embedder Embedder, index catalog.Index, opts ...Option) *Resolver {
	r := &Resolver{
		embedder:  embedder,
		index:     index,
		topK:      3,
		threshold: 0.7,
		workers:   4,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CallOption overrides defaults for a single call.
type CallOption func(*callParams)

type callParams struct {
	topK      int
	threshold float64
}

// WithTopK caps the candidates per item for one call.
func WithTopK(k int) CallOption {
	return func(p *callParams) { p.topK = k }
}

// WithThreshold sets the minimum similarity for one call.
func WithThreshold(t float64) CallOption {
	return func(p *callParams) { p.threshold = t }
}

// Resolve parses rawText and resolves every item. Item-level failures (embedding
// errors, invalid query vectors) yield an empty candidate list for that item; an
// unavailable catalog fails the whole call. Results follow the input line order.
func (r *Resolver) Resolve(ctx context.Context, rawText string, opts ...CallOption) ([]models.MatchResult, error) {
	return r.ResolveItems(ctx, menuparse.Parse(rawText), opts...)
}

// ResolveItems resolves already parsed items.
func (r *Resolver) ResolveItems(ctx context.Context, items []models.ParsedItem, opts ...CallOption) ([]models.MatchResult, error) {
	p := callParams{topK: r.topK, threshold: r.threshold}
	for _, opt := range opts {
		opt(&p)
	}

	results := make([]models.MatchResult, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i := range items {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			cands, err := r.resolveItem(gctx, items[i], p)
			if err != nil {
				return err
			}
			results[i] = models.MatchResult{Item: items[i], Candidates: cands}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *Resolver) resolveItem(ctx context.Context, item models.ParsedItem, p callParams) ([]models.MatchCandidate, error) {
	empty := []models.MatchCandidate{}

	vec, err := r.embedder.Embed(ctx, item.Name)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("no embedding for item", zap.String("item", item.Name), zap.Error(err))
		return empty, nil
	}

	cands, err := r.index.Search(ctx, vec, p.topK, p.threshold)
	switch {
	case err == nil:
	case errors.Is(err, catalog.ErrInvalidQueryVector):
		r.logger.Warn("invalid query vector for item", zap.String("item", item.Name), zap.Error(err))
		return empty, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		r.logger.Error("catalog search failed", zap.String("item", item.Name), zap.Error(err))
		if errors.Is(err, catalog.ErrCatalogUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("search %q: %w", item.Name, err)
	}

	if cands == nil {
		cands = empty
	}
	r.logger.Debug("resolved item", zap.String("item", item.Name), zap.Int("candidates", len(cands)))
	return cands, nil
}
