package embedding

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps MockEmbedder, counts calls and can fail or emit bad vectors.
type countingEmbedder struct {
	*MockEmbedder
	calls   atomic.Int32
	failOn  string
	badLen  bool
	withNaN bool
	zero    bool
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if text == e.failOn {
		return nil, errors.New("tokenizer exploded")
	}
	v, err := e.MockEmbedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if e.badLen {
		return v[:len(v)-1], nil
	}
	if e.withNaN {
		v[0] = float32(math.NaN())
	}
	if e.zero {
		return make([]float32, len(v)), nil
	}
	return v, nil
}

func TestProvider_loadsOnce(t *testing.T) {
	var loads atomic.Int32
	p := NewProvider(func(context.Context) (Embedder, error) {
		loads.Add(1)
		return NewMockEmbedder(16), nil
	}, WithModelID("test-model"))

	assert.False(t, p.Loaded())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Embed(context.Background(), "파스타")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	assert.True(t, p.Loaded())
	dims, err := p.Dimensions()
	require.NoError(t, err)
	assert.Equal(t, 16, dims)
	assert.Equal(t, "test-model", p.ModelID())
	assert.NoError(t, p.Close())
}

func TestProvider_loadFailureIsSticky(t *testing.T) {
	var loads atomic.Int32
	loadErr := errors.New("model file missing")
	p := NewProvider(func(context.Context) (Embedder, error) {
		loads.Add(1)
		return nil, loadErr
	})

	for i := 0; i < 3; i++ {
		_, err := p.Embed(context.Background(), "pizza")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrModelUnavailable)
		assert.ErrorIs(t, err, loadErr)
	}
	_, err := p.Dimensions()
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Equal(t, int32(1), loads.Load())
	assert.False(t, p.Loaded())
}

func TestProvider_invalidDimensionIsLoadFailure(t *testing.T) {
	p := NewStaticProvider(&MockEmbedder{dimensions: 0})
	err := p.Load(context.Background())
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestProvider_canceledContextDoesNotPoisonLoad(t *testing.T) {
	p := NewProvider(func(ctx context.Context) (Embedder, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return NewMockEmbedder(8), nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, p.Load(ctx))
	_, err := p.Embed(context.Background(), "cola")
	assert.NoError(t, err)
}

func TestProvider_encodingFailures(t *testing.T) {
	tests := []struct {
		name string
		emb  *countingEmbedder
		text string
	}{
		{"empty text", &countingEmbedder{MockEmbedder: NewMockEmbedder(8)}, ""},
		{"whitespace text", &countingEmbedder{MockEmbedder: NewMockEmbedder(8)}, " \t "},
		{"backend error", &countingEmbedder{MockEmbedder: NewMockEmbedder(8), failOn: "☃"}, "☃"},
		{"wrong length", &countingEmbedder{MockEmbedder: NewMockEmbedder(8), badLen: true}, "pizza"},
		{"non-finite", &countingEmbedder{MockEmbedder: NewMockEmbedder(8), withNaN: true}, "pizza"},
		{"zero magnitude", &countingEmbedder{MockEmbedder: NewMockEmbedder(8), zero: true}, "pizza"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewStaticProvider(tt.emb)
			_, err := p.Embed(context.Background(), tt.text)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrEncodingFailure)
			assert.NotErrorIs(t, err, ErrModelUnavailable)

			// The provider stays usable for other inputs.
			if !tt.emb.badLen && !tt.emb.withNaN && !tt.emb.zero {
				_, err = p.Embed(context.Background(), "cola")
				assert.NoError(t, err)
			}
		})
	}
}

func TestProvider_cache(t *testing.T) {
	emb := &countingEmbedder{MockEmbedder: NewMockEmbedder(8)}
	p := NewStaticProvider(emb, WithCacheSize(4))

	a, err := p.Embed(context.Background(), "bulgogi")
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), "bulgogi")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, int32(1), emb.calls.Load())

	uncached := NewStaticProvider(emb, WithCacheSize(0))
	_, _ = uncached.Embed(context.Background(), "bulgogi")
	_, _ = uncached.Embed(context.Background(), "bulgogi")
	assert.Equal(t, int32(3), emb.calls.Load())
}

func TestProvider_nilLoader(t *testing.T) {
	p := NewProvider(nil)
	_, err := p.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrModelUnavailable)
}
