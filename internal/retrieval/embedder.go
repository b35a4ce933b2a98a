package retrieval

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/ticketkb/internal/engine"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// sharedEmbedTimeout bounds a provider call made on behalf of several callers.
const sharedEmbedTimeout = 30 * time.Second

// Cache stores embeddings by key. Implementations swallow their own errors;
// a failed Get is a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vec []float32)
}

// Embedder wraps an engine.Embedder and never fails: when the provider is
// unavailable it returns a zero vector of the configured dimension, which
// scores 0 against everything.
type Embedder struct {
	engine    engine.Embedder
	dim       int
	modelID   string
	cache     Cache
	group     singleflight.Group
	onFailure func()
	logger    *slog.Logger
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithCache enables the embedding cache. modelID namespaces the keys so
// switching models never serves stale vectors.
func WithCache(c Cache, modelID string) Option {
	return func(e *Embedder) {
		e.cache = c
		e.modelID = modelID
	}
}

// WithFailureHook registers fn to run each time the provider fails.
func WithFailureHook(fn func()) Option {
	return func(e *Embedder) { e.onFailure = fn }
}

// NewEmbedder returns an Embedder producing dim-length vectors.
func NewEmbedder(e engine.Embedder, dim int, opts ...Option) *Embedder {
	em := &Embedder{
		engine: e,
		dim:    dim,
		logger: slog.Default().With("component", "embedder"),
	}
	for _, o := range opts {
		o(em)
	}
	return em
}

// Dimensions is the length of the fallback vector.
func (e *Embedder) Dimensions() int { return e.dim }

// Embed returns the embedding for text, or a zero vector if the provider
// fails.
func (e *Embedder) Embed(ctx context.Context, text string) []float32 {
	if e.cache == nil {
		return e.embed(ctx, text)
	}

	key := e.cacheKey(text)
	if vec, ok := e.cache.Get(ctx, key); ok {
		return vec
	}
	// The shared call outlives any single caller so one caller going away
	// cannot hand the others a zero vector.
	ch := e.group.DoChan(key, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedEmbedTimeout)
		defer cancel()
		vec, err := e.engine.Embed(callCtx, text)
		if err != nil {
			return e.fallback(err), nil
		}
		e.cache.Set(callCtx, key, vec)
		return vec, nil
	})
	select {
	case res := <-ch:
		return res.Val.([]float32)
	case <-ctx.Done():
		return make([]float32, e.dim)
	}
}

// EmbedBatch embeds texts concurrently, four at a time. Order is preserved.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	if len(texts) == 0 {
		return nil
	}
	out := make([][]float32, len(texts))
	var g errgroup.Group
	g.SetLimit(4)
	for i, text := range texts {
		g.Go(func() error {
			out[i] = e.Embed(ctx, text)
			return nil
		})
	}
	g.Wait()
	return out
}

func (e *Embedder) embed(ctx context.Context, text string) []float32 {
	vec, err := e.engine.Embed(ctx, text)
	if err != nil {
		return e.fallback(err)
	}
	return vec
}

func (e *Embedder) fallback(err error) []float32 {
	e.logger.Warn("embedding unavailable, using zero vector", "error", err, "dimensions", e.dim)
	if e.onFailure != nil {
		e.onFailure()
	}
	return make([]float32, e.dim)
}

func (e *Embedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(e.modelID + "\x00" + text))
	return fmt.Sprintf("emb:%x", sum[:16])
}
