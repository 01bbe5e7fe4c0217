package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sandevgo/localrag/internal/core"
)

const anthropicMaxTokens = 4096

type Anthropic struct {
	client anthropic.Client
	model  string
}

func NewAnthropic(apiKey, model string, opts ...option.RequestOption) *Anthropic {
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(2),
	}, opts...)

	return &Anthropic{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

func (a *Anthropic) Chat(ctx context.Context, history []core.Message) (core.Message, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: anthropicMaxTokens,
	}

	// System messages go to the dedicated field, the API rejects them inline.
	for _, m := range history {
		switch m.Role {
		case core.RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case core.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return core.Message{}, fmt.Errorf("anthropic messages: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			sb.WriteString(b.Text)
		}
	}
	return core.Message{Role: core.RoleAssistant, Content: sb.String()}, nil
}

func (a *Anthropic) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := a.Chat(ctx, []core.Message{{Role: core.RoleUser, Content: prompt}})
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

func (a *Anthropic) Models(ctx context.Context) ([]core.Model, error) {
	iter := a.client.Models.ListAutoPaging(ctx, anthropic.ModelListParams{})

	var models []core.Model
	for iter.Next() {
		m := iter.Current()
		// ContextLength is not provided by the Anthropic models API
		models = append(models, core.Model{ID: m.ID, Name: m.DisplayName})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("fetch models: %w", err)
	}
	return models, nil
}
