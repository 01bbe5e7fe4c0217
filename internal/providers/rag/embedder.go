package rag

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/sandevgo/localrag/internal/core"
	"github.com/sandevgo/localrag/pkg/log"
)

const DefaultDimension = 768

var hashWord = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// HashEmbedder maps text to a deterministic bag-of-words vector. Texts that
// share words land close together; it stands in when no model is reachable.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Dimension() int {
	return h.dim
}

func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = h.embed(text)
	}
	return out, nil
}

func (h *HashEmbedder) embed(text string) []float32 {
	vec := make([]float32, h.dim)
	for _, word := range hashWord.FindAllString(strings.ToLower(text), -1) {
		f := fnv.New64a()
		f.Write([]byte(word))
		sum := f.Sum64()

		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}
		vec[sum%uint64(h.dim)] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		// keep empty texts comparable instead of a zero vector
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// FallbackEmbedder uses primary until it fails once, then switches to the
// hash embedder for the rest of the process so stored vectors stay
// comparable.
type FallbackEmbedder struct {
	primary  core.Embedder
	fallback *HashEmbedder
	degraded atomic.Bool
}

func NewFallbackEmbedder(primary core.Embedder, dim int) *FallbackEmbedder {
	f := &FallbackEmbedder{fallback: NewHashEmbedder(dim), primary: primary}
	if primary == nil {
		f.degraded.Store(true)
	}
	return f
}

func (f *FallbackEmbedder) Degraded() bool {
	return f.degraded.Load()
}

func (f *FallbackEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if f.degraded.Load() {
		return f.fallback.Embed(ctx, texts)
	}

	vecs, err := f.primary.Embed(ctx, texts)
	if err == nil && len(vecs) != len(texts) {
		err = fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}
	if err == nil {
		return vecs, nil
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	if f.degraded.CompareAndSwap(false, true) {
		log.FromCtx(ctx).Warn().
			Err(err).
			Int("dimension", f.fallback.Dimension()).
			Msg("embedding backend unavailable, switching to hash embeddings")
	}
	return f.fallback.Embed(ctx, texts)
}

// BatchEmbedder splits large requests into batches of at most size texts.
type BatchEmbedder struct {
	next core.Embedder
	size int
}

func NewBatchEmbedder(next core.Embedder, size int) *BatchEmbedder {
	if size <= 0 {
		size = 32
	}
	return &BatchEmbedder{next: next, size: size}
}

func (b *BatchEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) <= b.size {
		return b.next.Embed(ctx, texts)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.size {
		end := min(start+b.size, len(texts))
		vecs, err := b.next.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), end-start)
		}
		out = append(out, vecs...)
	}
	return out, nil
}
