package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/sandevgo/localrag/internal/config"
	"github.com/sandevgo/localrag/internal/core"
	"github.com/sandevgo/localrag/pkg/conv"
	"github.com/sandevgo/localrag/pkg/log"
)

const defaultSessionID = "cli-local"

type Agent interface {
	Run(ctx context.Context, sessionID, input string, onUpdate func(core.Message)) (string, error)
}

type ReadLine struct {
	cfg    *config.AppConfig
	agent  Agent
	router core.CmdRouter
	rl     *readline.Instance
}

func NewReadLine(agent Agent, router core.CmdRouter, cfg *config.AppConfig) (*ReadLine, error) {
	if err := os.MkdirAll(cfg.RuntimePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create runtime directory: %w", err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		HistoryFile:     cfg.GetHistoryPath(),
		AutoComplete:    completer(router),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, err
	}

	return &ReadLine{
		cfg:    cfg,
		agent:  agent,
		router: router,
		rl:     rl,
	}, nil
}

func (r *ReadLine) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	logger.Info().Msg("chat started, type /help for commands or 'exit' to quit")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := r.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				if len(line) == 0 {
					return nil
				}
				continue
			} else if err == io.EOF {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		switch line {
		case "exit", "quit":
			return nil
		case "":
			continue
		}

		if reply, ok := r.router.Execute(ctx, defaultSessionID, line); ok {
			r.print(reply)
			continue
		}

		_, err = r.agent.Run(ctx, defaultSessionID, line, func(msg core.Message) {
			if msg.Content != "" {
				r.print(msg.Content)
			}
		})
		if err != nil {
			logger.Error().Err(err).Msg("agent run failed")
			fmt.Fprintf(r.rl.Stdout(), "Error: %v\n", err)
		}
	}
}

// completer offers the slash commands on tab.
func completer(router core.CmdRouter) *readline.PrefixCompleter {
	cmds := router.ListCommands()
	items := make([]readline.PrefixCompleterInterface, 0, len(cmds))
	for _, cmd := range cmds {
		items = append(items, readline.PcItem(core.CommandPrefix+cmd.Name()))
	}
	return readline.NewPrefixCompleter(items...)
}

func (r *ReadLine) print(md string) {
	fmt.Fprintf(r.rl.Stdout(), "%s\n\n", conv.MarkdownToText([]byte(md)))
}

func (r *ReadLine) Shutdown(ctx context.Context) error {
	if r.rl != nil {
		return r.rl.Close()
	}
	return nil
}
