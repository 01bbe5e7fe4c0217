package agent

import (
	"os"
	"strings"

	"github.com/sandevgo/localrag/internal/core"
)

const DefaultSystemPrompt = `You are a helpful assistant running on the user's machine.
Earlier conversation and excerpts from the user's documents may be provided as context.
Use them when they are relevant and cite the document name when you rely on one.
If the context does not contain the answer, answer from general knowledge.`

// SysPrompt builds the leading system message. A SYSTEM.md file in the
// runtime directory replaces the built-in prompt.
type SysPrompt struct {
	path string
}

func NewSysPrompt(path string) *SysPrompt {
	return &SysPrompt{path: path}
}

func (p *SysPrompt) Build() []core.Message {
	content := DefaultSystemPrompt
	if raw, err := os.ReadFile(p.path); err == nil && strings.TrimSpace(string(raw)) != "" {
		content = string(raw)
	}
	return []core.Message{{Role: core.RoleSystem, Content: content}}
}
