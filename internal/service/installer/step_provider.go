package installer

func NewProviderStep() Step {
	return &ChoiceStep{
		prompt: "Select your chat provider:",
		choices: []choice{
			{"ollama", "Ollama (local)"},
			{"openai", "OpenAI"},
			{"anthropic", "Anthropic"},
			{"openrouter", "OpenRouter"},
			{"custom", "Custom OpenAI-compatible server"},
		},
		apply: func(state *InstallState, id string) {
			state.Settings.Provider = id
		},
	}
}

func NewEmbeddingStep() Step {
	return &ChoiceStep{
		prompt: "Select how documents are embedded:",
		choices: []choice{
			{embedSameProvider, "Same provider as chat"},
			{"ollama", "Ollama (nomic-embed-text)"},
			{"hash", "Offline hash embeddings (no model, lower quality)"},
		},
		apply: func(state *InstallState, id string) {
			state.embeddingChoice = id
		},
	}
}

func NewBackendStep() Step {
	return &ChoiceStep{
		prompt: "Select where vectors are stored:",
		choices: []choice{
			{"sqlite", "SQLite with sqlite-vec"},
			{"chromem", "chromem-go files"},
			{"none", "Plain JSON file (no vector index)"},
		},
		apply: func(state *InstallState, id string) {
			state.Settings.VectorBackend = id
		},
	}
}

func NewChannelStep() Step {
	return &ChoiceStep{
		prompt: "Select your chat channel:",
		choices: []choice{
			{"cli", "Terminal only"},
			{"telegram", "Terminal and Telegram"},
		},
		apply: func(state *InstallState, id string) {
			state.Settings.EnableTelegram = id == "telegram"
		},
	}
}
