package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/localrag/pkg/log"
)

type RAGConfig struct {
	ChunkSize    int `env:"LOCALRAG_CHUNK_SIZE" envDefault:"1000"`
	ChunkOverlap int `env:"LOCALRAG_CHUNK_OVERLAP" envDefault:"200"`

	// Embedding provider: ollama, openai, openrouter, custom or hash.
	EmbeddingProvider  string `env:"LOCALRAG_EMBEDDING_PROVIDER" envDefault:"ollama"`
	EmbeddingModel     string `env:"LOCALRAG_EMBEDDING_MODEL" envDefault:"nomic-embed-text"`
	EmbeddingDimension int    `env:"LOCALRAG_EMBEDDING_DIMENSION" envDefault:"768"`
	EmbeddingBatchSize int    `env:"LOCALRAG_EMBEDDING_BATCH_SIZE" envDefault:"32"`

	// Number of cached embeddings, 0 disables the cache.
	EmbeddingCacheSize int64 `env:"LOCALRAG_EMBEDDING_CACHE_SIZE" envDefault:"10000"`
}

func NewRAGConfig(ctx context.Context) *RAGConfig {
	cfg := &RAGConfig{}
	if err := env.Parse(cfg); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse RAG config")
	}
	return cfg
}
