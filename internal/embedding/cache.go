package embedding

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedGateway adds a process-wide bounded LRU cache in front of another
// gateway. Distinct query texts repeat heavily in interactive use, so a
// small cache removes most round trips to the embedding backend.
type CachedGateway struct {
	inner Gateway
	cache *lru.Cache[string, []float32]
}

// NewCached wraps inner with an LRU cache of the given size.
func NewCached(inner Gateway, size int) (*CachedGateway, error) {
	if size < 1 {
		size = 1024
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachedGateway{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector for text when present, otherwise delegates
// and caches the result. Errors are never cached.
func (g *CachedGateway) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := g.cache.Get(text); ok {
		return vec, nil
	}
	vec, err := g.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	g.cache.Add(text, vec)
	return vec, nil
}

// Model returns the inner gateway's model identifier.
func (g *CachedGateway) Model() string {
	return g.inner.Model()
}

var _ Gateway = (*CachedGateway)(nil)

// requestCache memoizes embeddings per distinct input text within a single
// logical request. Unlike CachedGateway it has no eviction: a request embeds
// at most a handful of distinct texts, and the whole cache is dropped with
// the request.
type requestCache struct {
	inner Gateway

	mu   sync.Mutex
	seen map[string][]float32
}

// WithRequestCache wraps g with per-request memoization. The returned
// gateway is safe for concurrent use within the request.
func WithRequestCache(g Gateway) Gateway {
	return &requestCache{inner: g, seen: make(map[string][]float32)}
}

func (r *requestCache) Embed(ctx context.Context, text string) ([]float32, error) {
	r.mu.Lock()
	vec, ok := r.seen[text]
	r.mu.Unlock()
	if ok {
		return vec, nil
	}

	vec, err := r.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.seen[text] = vec
	r.mu.Unlock()
	return vec, nil
}

func (r *requestCache) Model() string {
	return r.inner.Model()
}
