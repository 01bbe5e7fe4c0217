package core

import (
	"context"
	"strings"
)

// CommandPrefix marks chat input that is routed to a slash command instead of
// the agent.
const CommandPrefix = "/"

// CmdRouter dispatches slash commands. handled is false when the input is a
// plain chat message.
type CmdRouter interface {
	Execute(ctx context.Context, sessionID, input string) (reply string, handled bool)
	ListCommands() []Command
}

type Command interface {
	Name() string
	Description() string
	Execute(ctx context.Context, sessionID string, args []string) (string, error)
}

// ParseCommand splits "/name arg1 arg2" into a lower-cased name and its
// arguments. ok is false for input that is not a command.
func ParseCommand(input string) (name string, args []string, ok bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, CommandPrefix) {
		return "", nil, false
	}
	parts := strings.Fields(strings.TrimPrefix(input, CommandPrefix))
	if len(parts) == 0 {
		return "", nil, false
	}
	return strings.ToLower(parts[0]), parts[1:], true
}
