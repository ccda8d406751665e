package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Loader constructs the embedding backend. Provider calls it at most once.
type Loader func(ctx context.Context) (Embedder, error)

// Provider is the process-wide embedding handle. The backend is materialized
// once, either eagerly through Load or on the first Embed, and never reloaded;
// a failed load is remembered and reported as ErrModelUnavailable thereafter.
type Provider struct {
	loader  Loader
	modelID string
	cache   *EmbeddingCache
	logger  *zap.Logger

	once     sync.Once
	embedder Embedder
	dims     int
	loadErr  error
	loaded   atomic.Bool
}

// Option configures a Provider.
type Option func(*Provider)

// WithModelID sets the identifier reported by ModelID.
func WithModelID(id string) Option {
	return func(p *Provider) { p.modelID = id }
}

// WithCacheSize enables an LRU cache of the given capacity; zero disables it.
func WithCacheSize(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.cache = NewEmbeddingCache(n)
		} else {
			p.cache = nil
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProvider returns a provider that builds its backend with loader.
func NewProvider(loader Loader, opts ...Option) *Provider {
	p := &Provider{loader: loader, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewStaticProvider wraps an already constructed backend.
func NewStaticProvider(e Embedder, opts ...Option) *Provider {
	return NewProvider(func(context.Context) (Embedder, error) { return e, nil }, opts...)
}

// Load materializes the backend if it has not been yet and returns the load outcome.
// The load is detached from ctx cancellation so one aborted request cannot poison the provider.
func (p *Provider) Load(ctx context.Context) error {
	p.once.Do(func() {
		p.load(context.WithoutCancel(ctx))
	})
	if p.loadErr != nil {
		return fmt.Errorf("%w: %w", ErrModelUnavailable, p.loadErr)
	}
	return nil
}

func (p *Provider) load(ctx context.Context) {
	if p.loader == nil {
		p.loadErr = fmt.Errorf("no embedding backend configured")
		return
	}
	e, err := p.loader(ctx)
	if err != nil {
		p.loadErr = err
		p.logger.Error("embedding model failed to load", zap.String("model", p.modelID), zap.Error(err))
		return
	}
	dims := e.Dimensions()
	if dims <= 0 {
		_ = e.Close()
		p.loadErr = fmt.Errorf("backend reported invalid dimension %d", dims)
		p.logger.Error("embedding model failed to load", zap.String("model", p.modelID), zap.Error(p.loadErr))
		return
	}
	p.embedder = e
	p.dims = dims
	p.loaded.Store(true)
	p.logger.Info("embedding model loaded", zap.String("model", p.modelID), zap.Int("dimensions", dims))
}

// Embed returns the embedding of text. Empty text and backend errors yield
// ErrEncodingFailure; a failed load yields ErrModelUnavailable. The returned
// slice may be shared with the cache and must not be modified.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := p.Load(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrEncodingFailure)
	}
	if p.cache != nil {
		if v, ok := p.cache.Get(text); ok {
			return v, nil
		}
	}
	v, err := p.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncodingFailure, err)
	}
	if err := p.check(v); err != nil {
		return nil, err
	}
	if p.cache != nil {
		p.cache.Set(text, v)
	}
	return v, nil
}

func (p *Provider) check(v []float32) error {
	if len(v) != p.dims {
		return fmt.Errorf("%w: got %d components, want %d", ErrEncodingFailure, len(v), p.dims)
	}
	var norm float64
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return fmt.Errorf("%w: non-finite component", ErrEncodingFailure)
		}
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return fmt.Errorf("%w: zero-magnitude vector", ErrEncodingFailure)
	}
	return nil
}

// Dimensions returns D, loading the backend if needed.
func (p *Provider) Dimensions() (int, error) {
	if err := p.Load(context.Background()); err != nil {
		return 0, err
	}
	return p.dims, nil
}

// ModelID returns the configured model identifier.
func (p *Provider) ModelID() string {
	return p.modelID
}

// Loaded reports whether the backend has been materialized successfully.
func (p *Provider) Loaded() bool {
	return p.loaded.Load()
}

// CacheStats reports the embedding cache counters; ok is false when caching is off.
func (p *Provider) CacheStats() (stats CacheStats, ok bool) {
	if p.cache == nil {
		return CacheStats{}, false
	}
	return p.cache.Stats(), true
}

// Close releases the backend if it was loaded.
func (p *Provider) Close() error {
	if p.loaded.Load() {
		return p.embedder.Close()
	}
	return nil
}
