package installer

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sandevgo/localrag/internal/providers/llm"
)

// ModelStep lists the chat models the selected provider offers
type ModelStep struct {
	list     list.Model
	loading  bool
	fetching bool // Ensures we only trigger the API call once
	err      error
}

func NewModelStep() Step {
	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Select Chat Model"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle

	return &ModelStep{
		list:    l,
		loading: true,
	}
}

// Init refetches on every visit, the provider may have changed.
func (s *ModelStep) Init() tea.Cmd {
	s.loading = true
	s.fetching = false
	s.err = nil
	return nil
}

func (s *ModelStep) capturesEsc() bool {
	return s.list.FilterState() != list.Unfiltered
}

func fetchModels(state *InstallState) tea.Cmd {
	settings := state.Settings.LLMSettings
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		p, err := llm.NewProvider(ctx, settings)
		if err != nil {
			return fetchErrMsg(err)
		}
		models, err := p.Models(ctx)
		if err != nil {
			return fetchErrMsg(err)
		}
		if len(models) == 0 {
			return fetchErrMsg(fmt.Errorf("%s returned no models", settings.Provider))
		}

		items := make([]list.Item, 0, len(models))
		for _, mod := range models {
			desc := "ID: " + mod.ID
			if mod.ContextLength > 0 {
				desc = fmt.Sprintf("ID: %s | Context: %d", mod.ID, mod.ContextLength)
			}
			items = append(items, item{id: mod.ID, title: mod.Name, desc: desc})
		}
		return modelsMsg(items)
	}
}

func (s *ModelStep) Update(msg tea.Msg, state *InstallState, width, height int) (Step, tea.Cmd) {
	// 1. Trigger fetch once when we enter the step
	if s.loading && !s.fetching {
		s.fetching = true
		return s, fetchModels(state)
	}

	// Update list size
	s.list.SetSize(width, height-4)

	var cmd tea.Cmd
	switch msg := msg.(type) {
	case modelsMsg:
		s.list.SetItems(msg)
		s.loading = false
		s.fetching = false
		return s, nil

	case fetchErrMsg:
		s.loading = false
		s.fetching = false
		s.err = msg
		return s, nil // Return nil command to break the error loop

	case tea.KeyMsg:
		// If there's an error, allow retry with Enter or the default with s
		if s.err != nil {
			switch msg.String() {
			case "enter":
				s.err = nil
				s.loading = true
				s.fetching = false
			case "s":
				state.Settings.Model = defaultModels[state.Settings.Provider]
				return nil, nil
			}
			return s, nil
		}

		if msg.String() == "enter" {
			wasFiltering := s.list.FilterState() == list.Filtering
			s.list, cmd = s.list.Update(msg)

			if wasFiltering || s.list.FilterState() == list.Filtering {
				return s, cmd
			}

			if i, ok := s.list.SelectedItem().(item); ok {
				state.Settings.Model = i.id
				return nil, nil
			}
			return s, cmd
		}
	}

	s.list, cmd = s.list.Update(msg)
	return s, cmd
}

func (s *ModelStep) View(state *InstallState) string {
	if s.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error fetching models: %v", s.err)) +
			fmt.Sprintf("\n\nCheck your API key and connection.\n\n(press enter to retry, s to use %s, ctrl+c to quit)\n",
				defaultModels[state.Settings.Provider])
	}
	if s.loading {
		return fmt.Sprintf("Fetching models from %s...\n", state.Settings.Provider)
	}
	return s.list.View()
}
