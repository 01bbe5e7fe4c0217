package config

import (
	"context"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/localrag/pkg/log"
)

type RetrievalConfig struct {
	MaxRelevantChunks   int     `env:"LOCALRAG_MAX_RELEVANT_CHUNKS" envDefault:"5"`
	SimilarityThreshold float64 `env:"LOCALRAG_SIMILARITY_THRESHOLD" envDefault:"0"`
	MaxHistoryTokens    int     `env:"LOCALRAG_MAX_HISTORY_TOKENS" envDefault:"2000"`
	IncludeRecentTurns  int     `env:"LOCALRAG_INCLUDE_RECENT_TURNS" envDefault:"5"`
	// Relevant conversation items fetched per query.
	ConversationResults int `env:"LOCALRAG_CONVERSATION_RESULTS" envDefault:"3"`
}

func NewRetrievalConfig(ctx context.Context) *RetrievalConfig {
	cfg := &RetrievalConfig{}
	if err := env.Parse(cfg); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Retrieval config")
	}
	return cfg
}
