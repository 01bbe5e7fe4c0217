package rag

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
	"github.com/sandevgo/localrag/internal/core"
)

// CachedEmbedder memoizes embeddings per (model, text). Only cache misses
// reach the wrapped embedder, in one call.
type CachedEmbedder struct {
	next  core.Embedder
	model string
	cache *ristretto.Cache
}

func NewCachedEmbedder(next core.Embedder, model string, size int64) (*CachedEmbedder, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: size * 10,
		MaxCost:     size,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &CachedEmbedder{next: next, model: model, cache: cache}, nil
}

func (c *CachedEmbedder) key(text string) string {
	return c.model + "\x00" + text
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var (
		missing []string
		slots   []int
	)
	for i, text := range texts {
		if v, ok := c.cache.Get(c.key(text)); ok {
			out[i] = append([]float32(nil), v.([]float32)...)
			continue
		}
		missing = append(missing, text)
		slots = append(slots, i)
	}

	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.next.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missing))
	}

	for j, vec := range vecs {
		out[slots[j]] = vec
		c.cache.Set(c.key(missing[j]), append([]float32(nil), vec...), 1)
	}
	c.cache.Wait()
	return out, nil
}

func (c *CachedEmbedder) Close() error {
	c.cache.Close()
	return nil
}
