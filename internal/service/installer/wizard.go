package installer

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sandevgo/localrag/internal/service/ui"
)

var (
	titleStyle = ui.HeaderStyle
	itemStyle  = ui.ItemStyle
	selStyle   = ui.SelectedStyle
	errorStyle = ui.ErrorStyle
)

// Step represents a single step in the installation wizard. Every step
// receives a nextMsg when it becomes current, so steps that do not apply can
// return nil right away.
type Step interface {
	Init() tea.Cmd
	Update(msg tea.Msg, state *InstallState, width, height int) (Step, tea.Cmd)
	View(state *InstallState) string
}

func getSteps() []Step {
	return []Step{
		NewProviderStep(),
		NewEmbeddingStep(),
		NewOllamaURLStep(),
		NewCustomURLStep(),
		NewAPIKeyStep(),
		NewModelStep(),
		NewBackendStep(),
		NewChannelStep(),
		NewTelegramTokenStep(),
		NewTelegramOwnerStep(),
		NewFinalizationStep(),
		NewPullModelStep(),
		NewSaveEnvStep(),
		NewInitializeFilesStep(),
	}
}

type item struct {
	id    string
	title string
	desc  string
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.id }

type modelsMsg []list.Item

// fetchErrMsg is a recoverable error a step shows and handles itself.
type fetchErrMsg error
type nextMsg struct{}

func enter() tea.Msg { return nextMsg{} }

// committer is implemented by steps that apply the collected answers. Once
// such a step completes, earlier steps can no longer be revisited.
type committer interface {
	commits()
}

// escCapturer is implemented by steps that use esc themselves.
type escCapturer interface {
	capturesEsc() bool
}

// model drives the steps. history holds the indices of steps the user
// answered, so esc can walk back through them.
type model struct {
	steps    []Step
	current  int
	history  []int
	state    *InstallState
	quitting bool
	width    int
	height   int
}

func initialModel() model {
	return model{
		steps: getSteps(),
		state: NewInstallState(),
	}
}

func (m model) Init() tea.Cmd {
	if len(m.steps) == 0 {
		return nil
	}
	return tea.Batch(m.steps[0].Init(), enter)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.quitting {
		return m, tea.Quit
	}
	if m.current >= len(m.steps) {
		return m, tea.Quit
	}
	step := m.steps[m.current]

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "esc":
			if c, ok := step.(escCapturer); ok && c.capturesEsc() {
				break
			}
			if n := len(m.history); n > 0 {
				m.current = m.history[n-1]
				m.history = m.history[:n-1]
				return m, m.steps[m.current].Init()
			}
			return m, nil
		}
	}

	next, cmd := step.Update(msg, m.state, m.width, m.height)
	if next != nil {
		m.steps[m.current] = next
		return m, cmd
	}

	// Step completed. Skipped steps complete on nextMsg and are not recorded.
	if _, ok := msg.(tea.KeyMsg); ok {
		m.history = append(m.history, m.current)
	}
	if _, ok := step.(committer); ok {
		m.history = nil
	}

	m.current++
	if m.current >= len(m.steps) {
		return m, tea.Quit
	}
	return m, tea.Batch(m.steps[m.current].Init(), enter)
}

func (m model) View() string {
	if m.quitting {
		return "Installation cancelled.\n"
	}
	if m.current >= len(m.steps) {
		return "Configuration complete!\n"
	}

	hint := ""
	if len(m.history) > 0 {
		hint = itemStyle.Render("(esc to go back)") + "\n"
	}
	return titleStyle.Render("Setting up localrag") + "\n\n" + m.steps[m.current].View(m.state) + hint
}

// RunWizard runs the installer and returns the collected answers.
func RunWizard() (*InstallState, error) {
	p := tea.NewProgram(initialModel(), tea.WithAltScreen())
	m, err := p.Run()
	if err != nil {
		return nil, err
	}

	finalModel := m.(model)
	if finalModel.quitting {
		return nil, fmt.Errorf("localrag installation interrupted")
	}

	return finalModel.state, nil
}
