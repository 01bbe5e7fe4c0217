package config

import (
	"context"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/localrag/pkg/log"
)

// LLMSettings selects the chat provider and holds its credentials.
type LLMSettings struct {
	// ollama, openai, anthropic, openrouter or custom
	Provider string `env:"LOCALRAG_LLM_PROVIDER" envDefault:"ollama"`
	Model    string `env:"LOCALRAG_LLM_MODEL" envDefault:"llama3"`

	OllamaBaseURL       string `env:"OLLAMA_BASE_URL" envDefault:"http://localhost:11434"`
	OllamaAPIKey        string `env:"OLLAMA_API_KEY"`
	OpenAIAPIKey        string `env:"OPENAI_API_KEY"`
	AnthropicAPIKey     string `env:"ANTHROPIC_API_KEY"`
	OpenRouterAPIKey    string `env:"OPENROUTER_API_KEY"`
	CustomOpenAIBaseURL string `env:"CUSTOM_OPENAI_BASE_URL"`
	CustomOpenAIAPIKey  string `env:"CUSTOM_OPENAI_API_KEY"`
}

type LLMConfig struct {
	LLMSettings

	// .env file the selected model is written back to; empty disables it.
	envPath string
	mu      sync.RWMutex
}

func NewLLMConfig(ctx context.Context, envPath string) *LLMConfig {
	c := &LLMConfig{envPath: envPath}
	if err := env.Parse(&c.LLMSettings); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse LLM config")
	}
	return c
}

func (c *LLMConfig) GetModel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Model
}

// SetModel switches the model and persists it to the .env file.
func (c *LLMConfig) SetModel(model string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.envPath != "" {
		if err := setEnvValue(c.envPath, "LOCALRAG_LLM_MODEL", model); err != nil {
			return err
		}
	}
	c.Model = model
	return nil
}

func (c *LLMConfig) Settings() LLMSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.LLMSettings
}
