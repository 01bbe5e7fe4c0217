package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sandevgo/localrag/internal/config"
	"github.com/sandevgo/localrag/internal/core"
	"github.com/sandevgo/localrag/internal/service/ui"
	"github.com/sandevgo/localrag/pkg/conv"
	"github.com/sandevgo/localrag/pkg/log"
	"github.com/spf13/cobra"
)

var (
	debug bool
)

var rootCmd = &cobra.Command{
	Use:     "localrag",
	Short:   "localrag: a local RAG chat assistant",
	Long:    `localrag remembers your conversations and indexed documents and answers with that context.`,
	Version: core.AppVersion,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Global flags available to all subcommands
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", config.IsDebug(), "enable debug logging")
}

func setupLogger(ctx context.Context) (context.Context, func()) {
	isDebug := debug || config.IsDebug()
	return log.NewContextWithLogger(ctx, isDebug)
}

// setupStderrLogger keeps stdout free for command output.
func setupStderrLogger(ctx context.Context) (context.Context, func()) {
	isDebug := debug || config.IsDebug()
	return log.NewContextWithWriter(ctx, isDebug, os.Stderr)
}

// runWithApp wires the application for a one-shot command and releases its
// storage afterwards.
func runWithApp(cmd *cobra.Command, fn func(ctx context.Context, app *App) error) error {
	ctx, flushLog := setupStderrLogger(cmd.Context())
	defer flushLog()

	app := NewApp(ctx)
	defer app.Close(ctx)

	return fn(ctx, app)
}

// printMarkdown writes a command reply as plain text.
func printMarkdown(cmd *cobra.Command, md string) {
	fmt.Fprintln(cmd.OutOrStdout(), conv.MarkdownToText([]byte(md)))
}

func CustomizeHelp(rootCmd *cobra.Command) {
	cobra.AddTemplateFunc("StyleTitle", func(s string) string { return ui.TitleStyle.Render(s) })
	cobra.AddTemplateFunc("StyleUsage", func(s string) string { return ui.UsageStyle.Render(s) })
	cobra.AddTemplateFunc("StyleFlag", func(s string) string { return ui.FlagStyle.Render(s) })
	cobra.AddTemplateFunc("StyleDesc", func(s string) string { return ui.DescStyle.Render(s) })

	template := `
{{StyleTitle "USAGE"}}
  {{StyleUsage .UseLine}}
{{if gt (len .Commands) 0}}{{StyleTitle "AVAILABLE COMMANDS"}}
{{range .Commands}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding}} {{StyleDesc .Short}}{{end}}
{{end}}{{end}}
{{if .HasAvailableLocalFlags}}{{StyleTitle "FLAGS"}}
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}
{{end}}
`
	rootCmd.SetHelpTemplate(template)
}
