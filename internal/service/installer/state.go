package installer

import "github.com/sandevgo/localrag/internal/config"

// Settings is what the wizard writes to the .env file.
type Settings struct {
	config.LLMSettings

	EmbeddingProvider string `env:"LOCALRAG_EMBEDDING_PROVIDER"`
	EmbeddingModel    string `env:"LOCALRAG_EMBEDDING_MODEL"`
	VectorBackend     string `env:"LOCALRAG_VECTOR_BACKEND"`

	EnableTelegram  bool   `env:"ENABLE_TELEGRAM"`
	TelegramToken   string `env:"TELEGRAM_TOKEN"`
	TelegramOwnerID int64  `env:"TELEGRAM_OWNER_ID"`

	Debug string `env:"LOCALRAG_DEBUG"`
}

type InstallState struct {
	Settings Settings
	// Embedding choice before it is resolved against the chat provider.
	embeddingChoice string
}

func NewInstallState() *InstallState {
	return &InstallState{}
}

const embedSameProvider = "same"

var defaultModels = map[string]string{
	"ollama":     "llama3",
	"openai":     "gpt-4o-mini",
	"anthropic":  "claude-3-5-haiku-latest",
	"openrouter": "openai/gpt-4o-mini",
	"custom":     "default",
}

var defaultEmbeddingModels = map[string]string{
	"ollama":     "nomic-embed-text",
	"openai":     "text-embedding-3-small",
	"openrouter": "openai/text-embedding-3-small",
	"custom":     "text-embedding-3-small",
}

func (s *InstallState) usesOllama() bool {
	return s.Settings.Provider == "ollama" || s.embeddingProvider() == "ollama"
}

// embeddingProvider resolves the embedding choice. Anthropic has no
// embeddings API, so "same provider" falls back to Ollama there.
func (s *InstallState) embeddingProvider() string {
	switch s.embeddingChoice {
	case "", embedSameProvider:
		if _, ok := defaultEmbeddingModels[s.Settings.Provider]; ok {
			return s.Settings.Provider
		}
		return "ollama"
	default:
		return s.embeddingChoice
	}
}
