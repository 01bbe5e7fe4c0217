package config

import (
	"context"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/localrag/pkg/log"
)

type AppConfig struct {
	RuntimePath string `env:"LOCALRAG_RUNTIME_PATH" envDefault:".localrag"`
	Collection  string `env:"LOCALRAG_COLLECTION" envDefault:"memory"`
	// sqlite, chromem or none
	VectorBackend string `env:"LOCALRAG_VECTOR_BACKEND" envDefault:"sqlite"`

	// Transport Flags
	EnableTelegram bool `env:"ENABLE_TELEGRAM" envDefault:"false"`
	EnableCLI      bool `env:"ENABLE_CLI" envDefault:"true"`

	WatchDir string `env:"LOCALRAG_WATCH_DIR"`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse App config")
	}
	c.RuntimePath = resolveRuntimePath(c.RuntimePath)
	return c
}

func (c AppConfig) GetRuntimePath() string {
	return c.RuntimePath
}

func (c AppConfig) GetDatabasePath() string {
	return filepath.Join(c.RuntimePath, "localrag.db")
}

func (c AppConfig) GetChromemPath() string {
	return filepath.Join(c.RuntimePath, "chromem")
}

// GetFallbackPath is where the memory store keeps its items when no vector
// backend is usable.
func (c AppConfig) GetFallbackPath() string {
	return filepath.Join(c.RuntimePath, c.Collection+".json")
}

func (c AppConfig) GetIndexRecordsPath() string {
	return filepath.Join(c.RuntimePath, c.Collection+".index.json")
}

func (c AppConfig) GetEnvPath() string {
	return EnvPath(c.RuntimePath)
}

func (c AppConfig) GetHistoryPath() string {
	return filepath.Join(c.RuntimePath, "input_history")
}

func (c AppConfig) IsTelegramSelected() bool {
	return c.EnableTelegram
}

// GetSystemPromptPath points at an optional file that replaces the built-in
// system prompt.
func (c AppConfig) GetSystemPromptPath() string {
	return filepath.Join(c.RuntimePath, "SYSTEM.md")
}
