package rag

import (
	"context"

	"github.com/sandevgo/localrag/internal/config"
	"github.com/sandevgo/localrag/internal/core"
	"github.com/sandevgo/localrag/pkg/log"
)

// NewEmbedder wires the embedding pipeline: remote model, batching, hash
// fallback and an optional cache. remote may be nil, which selects hash
// embeddings outright.
func NewEmbedder(ctx context.Context, cfg *config.RAGConfig, remote core.Embedder) (core.Embedder, func() error, error) {
	var next core.Embedder
	if remote != nil {
		next = NewBatchEmbedder(remote, cfg.EmbeddingBatchSize)
	}
	embedder := core.Embedder(NewFallbackEmbedder(next, cfg.EmbeddingDimension))

	if cfg.EmbeddingCacheSize <= 0 {
		return embedder, func() error { return nil }, nil
	}

	cached, err := NewCachedEmbedder(embedder, cfg.EmbeddingProvider+"/"+cfg.EmbeddingModel, cfg.EmbeddingCacheSize)
	if err != nil {
		return nil, nil, err
	}

	log.FromCtx(ctx).Debug().
		Int64("size", cfg.EmbeddingCacheSize).
		Msg("embedding cache enabled")
	return cached, cached.Close, nil
}
