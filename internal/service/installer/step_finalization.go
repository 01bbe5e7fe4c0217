package installer

import (
	tea "github.com/charmbracelet/bubbletea"
)

// FinalizationStep computes derived values
type FinalizationStep struct{}

func NewFinalizationStep() Step {
	return &FinalizationStep{}
}

func (s *FinalizationStep) commits() {}

func (s *FinalizationStep) Init() tea.Cmd {
	return nil
}

func (s *FinalizationStep) Update(msg tea.Msg, state *InstallState, width, height int) (Step, tea.Cmd) {
	finalize(state)
	return nil, nil
}

func finalize(state *InstallState) {
	st := &state.Settings

	if st.Model == "" {
		st.Model = defaultModels[st.Provider]
	}

	st.EmbeddingProvider = state.embeddingProvider()
	st.EmbeddingModel = defaultEmbeddingModels[st.EmbeddingProvider]

	if st.Provider != "ollama" && st.EmbeddingProvider != "ollama" {
		st.OllamaBaseURL = ""
	}
	if !st.EnableTelegram {
		st.TelegramToken = ""
		st.TelegramOwnerID = 0
	}

	if st.Debug == "" {
		st.Debug = "0"
	}
}

func (s *FinalizationStep) View(state *InstallState) string {
	return "Finalizing configuration...\n"
}
