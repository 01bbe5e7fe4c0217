package command

import (
	"context"
	"fmt"
	"sort"

	"github.com/sandevgo/localrag/internal/core"
	"github.com/sandevgo/localrag/pkg/log"
)

type Router struct {
	commands map[string]core.Command
}

func New(commands []core.Command) *Router {
	c := &Router{
		commands: make(map[string]core.Command),
	}

	for _, cmd := range commands {
		c.commands[cmd.Name()] = cmd
	}
	c.commands["help"] = NewHelpCommand(c.ListCommands)
	return c
}

// Execute runs input when it is a slash command. handled is false for plain
// chat messages.
func (c *Router) Execute(ctx context.Context, sessionID, input string) (string, bool) {
	name, args, ok := core.ParseCommand(input)
	if !ok {
		return "", false
	}

	cmd, ok := c.commands[name]
	if !ok {
		return fmt.Sprintf("Unknown command: /%s. Type /help for the list.", name), true
	}

	log.FromCtx(ctx).Debug().Str("command", name).Str("session", sessionID).Msg("executing command")

	result, err := cmd.Execute(ctx, sessionID, args)
	if err != nil {
		return NewResponseFormatter().Error(name, err), true
	}
	return result, true
}

// ListCommands returns the registered commands sorted by name.
func (c *Router) ListCommands() []core.Command {
	res := make([]core.Command, 0, len(c.commands))
	for _, cmd := range c.commands {
		res = append(res, cmd)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name() < res[j].Name() })
	return res
}
