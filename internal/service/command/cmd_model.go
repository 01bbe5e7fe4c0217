package command

import (
	"context"
	"fmt"
)

type ModelCommand struct {
	state     ModelState
	formatter *ResponseFormatter
}

func NewModelCommand(state ModelState) *ModelCommand {
	return &ModelCommand{
		state:     state,
		formatter: NewResponseFormatter(),
	}
}

func (c *ModelCommand) Name() string {
	return "model"
}

func (c *ModelCommand) Description() string {
	return "Show, list or change the chat model"
}

func (c *ModelCommand) Execute(ctx context.Context, sessionID string, args []string) (string, error) {
	provider, model := c.state.CurrentModel()

	if len(args) == 0 {
		return c.formatter.Combine(
			c.formatter.Info("Current Model"),
			c.formatter.Label("Provider", provider),
			c.formatter.Label("Model", model),
			c.formatter.Usage("/model [list|<model>]"),
			c.formatter.Examples([]string{
				"/model list",
				"/model llama3:8b",
				"/model mistral",
			}),
		), nil
	}

	if args[0] == "list" {
		models, err := c.state.ListModels(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to list models: %w", err)
		}
		if len(models) == 0 {
			return c.formatter.Warning(fmt.Sprintf("No models reported by %s.", provider)), nil
		}
		names := make([]string, len(models))
		for i, m := range models {
			names[i] = fmt.Sprintf("`%s`", m.ID)
			if m.ID == model {
				names[i] += " (current)"
			}
		}
		return c.formatter.Combine(
			c.formatter.Info(fmt.Sprintf("Models on %s", provider)),
			c.formatter.List(names),
		), nil
	}

	if err := c.state.ChangeModel(ctx, args[0]); err != nil {
		return "", fmt.Errorf("failed to set model: %w", err)
	}

	provider, model = c.state.CurrentModel()
	return c.formatter.Success(fmt.Sprintf("Model changed to: `%s/%s`", provider, model)), nil
}
