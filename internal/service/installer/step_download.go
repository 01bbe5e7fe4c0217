package installer

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sandevgo/localrag/internal/providers/llm"
)

type progressMsg float64
type pullDoneMsg string

// PullModelStep pulls the embedding model into Ollama so the first index
// run does not stall on a download.
type PullModelStep struct {
	progress progress.Model
	updates  chan tea.Msg
	started  bool
	err      error
	done     bool
	model    string
}

func NewPullModelStep() Step {
	return &PullModelStep{
		progress: progress.New(progress.WithDefaultGradient()),
		updates:  make(chan tea.Msg),
	}
}

func (s *PullModelStep) Init() tea.Cmd {
	return nil
}

func (s *PullModelStep) waitForActivity() tea.Cmd {
	return func() tea.Msg {
		return <-s.updates
	}
}

func (s *PullModelStep) doPull(baseURL, apiKey, model string) {
	o := llm.NewOllama(baseURL, apiKey, model)
	err := o.Pull(context.Background(), model, func(p llm.PullProgress) {
		if p.Total > 0 {
			s.updates <- progressMsg(float64(p.Completed) / float64(p.Total))
		}
	})
	if err != nil {
		s.updates <- fetchErrMsg(err)
		return
	}
	s.updates <- pullDoneMsg(model)
}

func (s *PullModelStep) Update(msg tea.Msg, state *InstallState, width, height int) (Step, tea.Cmd) {
	st := state.Settings
	if st.EmbeddingProvider != "ollama" || st.EmbeddingModel == "" {
		return nil, nil
	}

	if !s.started {
		s.started = true
		s.model = st.EmbeddingModel
		go s.doPull(st.OllamaBaseURL, st.OllamaAPIKey, st.EmbeddingModel)
		return s, s.waitForActivity()
	}

	s.progress.Width = width - 10

	switch msg := msg.(type) {
	case progressMsg:
		return s, tea.Batch(s.waitForActivity(), s.progress.SetPercent(float64(msg)))

	case pullDoneMsg:
		s.done = true
		return nil, nil

	case fetchErrMsg:
		s.err = msg
		return s, nil

	case tea.KeyMsg:
		// The model can be pulled later with `ollama pull`.
		if s.err != nil && msg.String() == "enter" {
			return nil, nil
		}

	case progress.FrameMsg:
		progressModel, cmd := s.progress.Update(msg)
		s.progress = progressModel.(progress.Model)
		return s, cmd
	}

	return s, nil
}

func (s *PullModelStep) View(state *InstallState) string {
	if s.err != nil {
		return errorStyle.Render(fmt.Sprintf("Pulling %s failed: %v", s.model, s.err)) +
			fmt.Sprintf("\n\nRun `ollama pull %s` later.\n\n(press enter to continue, ctrl+c to quit)\n", s.model)
	}
	if s.done {
		return fmt.Sprintf("Model %s is ready.\n", s.model)
	}

	return fmt.Sprintf("Pulling embedding model %s into Ollama...\n\n", s.model) +
		s.progress.View() + "\n"
}
