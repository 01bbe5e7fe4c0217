package llm

import (
	"context"
	"fmt"

	"github.com/sandevgo/localrag/internal/config"
	"github.com/sandevgo/localrag/internal/core"
	"github.com/sandevgo/localrag/pkg/log"
)

// NewProvider creates the chat provider selected by the configuration.
func NewProvider(ctx context.Context, cfg config.LLMSettings) (core.AIProvider, error) {
	log.FromCtx(ctx).Info().
		Str("provider", cfg.Provider).
		Str("model", cfg.Model).
		Msg("starting llm provider")

	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.Model), nil
	case "anthropic":
		return NewAnthropic(cfg.AnthropicAPIKey, cfg.Model), nil
	case "openrouter":
		return NewOpenRouter(cfg.OpenRouterAPIKey, cfg.Model), nil
	case "ollama":
		return NewOllama(cfg.OllamaBaseURL, cfg.OllamaAPIKey, cfg.Model), nil
	case "custom":
		return NewCustomOpenAI(cfg.CustomOpenAIBaseURL, cfg.CustomOpenAIAPIKey, cfg.Model), nil
	case "mock":
		return NewMock(cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

// NewEmbedder creates the remote embedding backend. Anthropic has no
// embeddings API and is rejected.
func NewEmbedder(ctx context.Context, provider, model string, cfg config.LLMSettings) (core.Embedder, error) {
	log.FromCtx(ctx).Info().
		Str("provider", provider).
		Str("model", model).
		Msg("starting embedding provider")

	switch provider {
	case "ollama":
		return NewOllama(cfg.OllamaBaseURL, cfg.OllamaAPIKey, model), nil
	case "openai":
		return NewOpenAI(cfg.OpenAIAPIKey, model), nil
	case "openrouter":
		return NewOpenRouter(cfg.OpenRouterAPIKey, model), nil
	case "custom":
		return NewCustomOpenAI(cfg.CustomOpenAIBaseURL, cfg.CustomOpenAIAPIKey, model), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", provider)
	}
}
