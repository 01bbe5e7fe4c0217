package main

import (
	"os"
	"os/signal"

	"github.com/sandevgo/localrag/internal/transport/mcp"
	"github.com/sandevgo/localrag/pkg/log"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve memory and documents over MCP (stdio)",
	Long: `Runs a Model Context Protocol server on stdin/stdout so other agents
can search memory and index documents. Logs go to stderr.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		// stdout carries the protocol
		var flushLog func()
		ctx, flushLog = setupStderrLogger(ctx)
		defer flushLog()

		app := NewApp(ctx)
		defer app.Close(ctx)

		server := mcp.NewServer(app.store, app.index, app.loader, app.assembler, os.Stdin, os.Stdout)
		log.FromCtx(ctx).Info().Msg("mcp server listening on stdio")
		return server.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
