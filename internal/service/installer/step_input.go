package installer

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

const defaultOllamaURL = "http://localhost:11434"

// field describes one free-text answer.
type field struct {
	prompt      string
	placeholder string
	def         string
	secret      bool
	optional    bool
	charLimit   int
	validate    func(string) error
	set         func(state *InstallState, value string)
}

// InputStep asks for a single value. resolve picks the field for the current
// answers; ok is false when the question does not apply.
type InputStep struct {
	resolve func(state *InstallState) (field, bool)
	field   *field
	input   textinput.Model
	err     error
}

func newInputStep(resolve func(*InstallState) (field, bool)) *InputStep {
	return &InputStep{resolve: resolve}
}

func when(cond func(*InstallState) bool, f field) func(*InstallState) (field, bool) {
	return func(state *InstallState) (field, bool) {
		return f, cond(state)
	}
}

func NewOllamaURLStep() Step {
	return newInputStep(when((*InstallState).usesOllama, field{
		prompt:      "Enter Ollama Base URL",
		placeholder: defaultOllamaURL,
		def:         defaultOllamaURL,
		validate:    validateURL,
		set:         func(s *InstallState, v string) { s.Settings.OllamaBaseURL = strings.TrimRight(v, "/") },
	}))
}

func NewCustomURLStep() Step {
	return newInputStep(when(func(s *InstallState) bool { return s.Settings.Provider == "custom" }, field{
		prompt:      "Enter the OpenAI-compatible Base URL",
		placeholder: "https://api.example.com/v1",
		validate:    validateURL,
		set:         func(s *InstallState, v string) { s.Settings.CustomOpenAIBaseURL = strings.TrimRight(v, "/") },
	}))
}

var apiKeyFields = map[string]field{
	"anthropic": {
		prompt:      "Enter your Anthropic API Key",
		placeholder: "sk-ant-...",
		secret:      true,
		set:         func(s *InstallState, v string) { s.Settings.AnthropicAPIKey = v },
	},
	"openai": {
		prompt:      "Enter your OpenAI API Key",
		placeholder: "sk-...",
		secret:      true,
		set:         func(s *InstallState, v string) { s.Settings.OpenAIAPIKey = v },
	},
	"openrouter": {
		prompt:      "Enter your OpenRouter API Key",
		placeholder: "sk-or-v1-...",
		secret:      true,
		set:         func(s *InstallState, v string) { s.Settings.OpenRouterAPIKey = v },
	},
	"ollama": {
		prompt:   "Enter your Ollama API Key",
		optional: true,
		set:      func(s *InstallState, v string) { s.Settings.OllamaAPIKey = v },
	},
	"custom": {
		prompt:   "Enter the API Key for the custom server",
		secret:   true,
		optional: true,
		set:      func(s *InstallState, v string) { s.Settings.CustomOpenAIAPIKey = v },
	},
}

// NewAPIKeyStep asks for the key of whichever provider was chosen.
func NewAPIKeyStep() Step {
	return newInputStep(func(state *InstallState) (field, bool) {
		f, ok := apiKeyFields[state.Settings.Provider]
		return f, ok
	})
}

func telegramEnabled(s *InstallState) bool { return s.Settings.EnableTelegram }

func NewTelegramTokenStep() Step {
	return newInputStep(when(telegramEnabled, field{
		prompt:      "Enter your Telegram Bot Token",
		placeholder: "123456789:ABCDEF...",
		secret:      true,
		validate:    validateBotToken,
		set:         func(s *InstallState, v string) { s.Settings.TelegramToken = v },
	}))
}

func NewTelegramOwnerStep() Step {
	return newInputStep(when(telegramEnabled, field{
		prompt:      "Enter your Telegram User ID (Owner)",
		placeholder: "123456789",
		charLimit:   20,
		validate: func(v string) error {
			if id, err := strconv.ParseInt(v, 10, 64); err != nil || id <= 0 {
				return errors.New("the user ID must be a positive number")
			}
			return nil
		},
		set: func(s *InstallState, v string) {
			s.Settings.TelegramOwnerID, _ = strconv.ParseInt(v, 10, 64)
		},
	}))
}

func (s *InputStep) reset(f field) {
	ti := textinput.New()
	ti.Focus()
	ti.Width = 50
	ti.CharLimit = 255
	if f.charLimit > 0 {
		ti.CharLimit = f.charLimit
	}
	ti.Placeholder = f.placeholder
	if f.secret {
		ti.EchoMode = textinput.EchoPassword
		ti.EchoCharacter = '•'
	}

	s.field = &f
	s.input = ti
	s.err = nil
}

func (s *InputStep) Init() tea.Cmd { return textinput.Blink }

func (s *InputStep) Update(msg tea.Msg, state *InstallState, width, height int) (Step, tea.Cmd) {
	f, ok := s.resolve(state)
	if !ok {
		return nil, nil
	}
	if _, entered := msg.(nextMsg); entered || s.field == nil {
		s.reset(f)
		if entered {
			return s, textinput.Blink
		}
	}

	if key, ok := msg.(tea.KeyMsg); ok && key.Type == tea.KeyEnter {
		val := strings.TrimSpace(s.input.Value())
		if val == "" {
			val = s.field.def
		}
		switch {
		case val == "" && s.field.optional:
		case val == "":
			s.err = errors.New("a value is required")
			return s, nil
		case s.field.validate != nil:
			if s.err = s.field.validate(val); s.err != nil {
				return s, nil
			}
		}
		s.field.set(state, val)
		return nil, nil
	}

	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)
	return s, cmd
}

func (s *InputStep) View(state *InstallState) string {
	if s.field == nil {
		return "Loading...\n"
	}

	prompt := s.field.prompt
	if s.field.optional {
		prompt += " (optional - press Enter to skip)"
	}
	hint := "(press enter to confirm)"
	if s.err != nil {
		hint = errorStyle.Render(s.err.Error())
	}
	return prompt + ":\n\n" + s.input.View() + "\n\n" + hint + "\n"
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an http(s) URL", raw)
	}
	return nil
}

// validateBotToken checks the "<bot id>:<secret>" shape BotFather hands out.
func validateBotToken(token string) error {
	id, secret, ok := strings.Cut(token, ":")
	if _, err := strconv.ParseInt(id, 10, 64); !ok || err != nil || secret == "" {
		return errors.New("the token should look like 123456789:ABCDEF...")
	}
	return nil
}
