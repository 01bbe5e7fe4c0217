package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/sandevgo/localrag/internal/config"
	"github.com/sandevgo/localrag/internal/core"
	"github.com/sandevgo/localrag/internal/service/retrieval"
	"github.com/sandevgo/localrag/pkg/log"
)

type Assembler interface {
	Assemble(ctx context.Context, query string, nConversation, nDocuments int) (retrieval.Context, error)
	FormatAsMessages(ctx context.Context, c retrieval.Context) ([]core.Message, retrieval.Budget)
}

type MemoryRepository interface {
	AddConversationPair(ctx context.Context, user, assistant string) (string, string, error)
}

type Agent struct {
	cfg       *config.RetrievalConfig
	ai        core.Generator
	assembler Assembler
	memory    MemoryRepository
	prompt    *SysPrompt
}

func NewAgent(
	cfg *config.RetrievalConfig,
	ai core.Generator,
	assembler Assembler,
	memory MemoryRepository,
	prompt *SysPrompt,
) *Agent {
	return &Agent{
		cfg:       cfg,
		ai:        ai,
		assembler: assembler,
		memory:    memory,
		prompt:    prompt,
	}
}

// Run answers one user message: it retrieves context, asks the model and
// stores the exchange. onUpdate, when set, receives the model reply before
// it is stored.
func (a *Agent) Run(ctx context.Context, sessionID string, input string, onUpdate func(core.Message)) (string, error) {
	logger := log.FromCtx(ctx).With().Str("session", sessionID).Logger()

	input = strings.TrimSpace(input)
	if input == "" {
		return "", nil
	}

	rc, err := a.assembler.Assemble(ctx, input, a.cfg.ConversationResults, a.cfg.MaxRelevantChunks)
	if err != nil {
		return "", fmt.Errorf("failed to assemble context: %w", err)
	}

	history, budget := a.assembler.FormatAsMessages(ctx, rc)
	logger.Debug().
		Int("messages", budget.Included).
		Int("dropped", budget.Dropped).
		Int("tokens", budget.Total).
		Msg("context ready")

	messages := append(a.prompt.Build(), history...)
	messages = append(messages, core.Message{Role: core.RoleUser, Content: input})

	resp, err := a.ai.Chat(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("ai chat error: %w", err)
	}

	if onUpdate != nil {
		onUpdate(resp)
	}

	if _, _, err := a.memory.AddConversationPair(ctx, input, resp.Content); err != nil {
		logger.Error().Err(err).Msg("failed to save conversation")
	}

	return resp.Content, nil
}
