package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/sandevgo/localrag/internal/core"
	"github.com/sandevgo/localrag/pkg/log"
)

// Mock answers with a fixed text. It stands in for an unreachable backend.
type Mock struct {
	model string
}

func NewMock(model string) *Mock {
	return &Mock{model: model}
}

func (m *Mock) text() string {
	return fmt.Sprintf("This is a mock response from %s. The model backend is not available.", m.model)
}

func (m *Mock) Chat(ctx context.Context, history []core.Message) (core.Message, error) {
	return core.Message{Role: core.RoleAssistant, Content: m.text()}, nil
}

func (m *Mock) Generate(ctx context.Context, prompt string) (string, error) {
	return m.text(), nil
}

func (m *Mock) Models(ctx context.Context) ([]core.Model, error) {
	return []core.Model{{ID: m.model, Name: m.model}}, nil
}

// Fallback serves each call from primary and answers from a Mock when the
// primary fails. Context errors are returned as is.
type Fallback struct {
	primary core.AIProvider
	mock    *Mock
}

func NewFallback(primary core.AIProvider, model string) *Fallback {
	return &Fallback{primary: primary, mock: NewMock(model)}
}

func (f *Fallback) Chat(ctx context.Context, history []core.Message) (core.Message, error) {
	msg, err := f.primary.Chat(ctx, history)
	if err == nil {
		return msg, nil
	}
	if isContextErr(ctx, err) {
		return core.Message{}, err
	}
	log.FromCtx(ctx).Warn().Err(err).Msg("model backend failed, using mock response")
	return f.mock.Chat(ctx, history)
}

func (f *Fallback) Generate(ctx context.Context, prompt string) (string, error) {
	text, err := f.primary.Generate(ctx, prompt)
	if err == nil {
		return text, nil
	}
	if isContextErr(ctx, err) {
		return "", err
	}
	log.FromCtx(ctx).Warn().Err(err).Msg("model backend failed, using mock response")
	return f.mock.Generate(ctx, prompt)
}

func (f *Fallback) Models(ctx context.Context) ([]core.Model, error) {
	return f.primary.Models(ctx)
}

func isContextErr(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
