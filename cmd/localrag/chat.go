package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/sandevgo/localrag/internal/config"
	"github.com/sandevgo/localrag/internal/service/watcher"
	"github.com/sandevgo/localrag/internal/transport/cli"
	"github.com/sandevgo/localrag/internal/transport/telegram"
	"github.com/sandevgo/localrag/pkg/log"
	"github.com/sandevgo/localrag/pkg/srv"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:     "chat",
	Aliases: []string{"start"},
	Short:   "Start the assistant",
	Long: `Starts the interactive chat and every enabled background service
(Telegram bot, directory watcher).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		// logger setup
		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()

		logger := log.FromCtx(ctx)
		logger.Info().Msg("starting localrag")

		app := NewApp(ctx)
		services := append(app.services, app.transports(ctx, stop)...)

		// Start services
		srv.StartServices(ctx, services)

		// Wait for shutdown signal or the end of the chat session
		srv.ShutdownServices(ctx, services)
		logger.Info().Msg("localrag has been shut down gracefully")

		return nil
	},
}

// transports builds the enabled front ends. Leaving the interactive chat
// stops the whole process.
func (a *App) transports(ctx context.Context, stop func()) []srv.Service {
	logger := log.FromCtx(ctx)
	var services []srv.Service

	if a.cfg.WatchDir != "" {
		w, err := watcher.New(a.cfg.WatchDir, a.index, a.loader)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize directory watcher")
		}
		services = append(services, w)
	}

	if a.cfg.IsTelegramSelected() {
		tgCfg := config.NewTelegramConfig(ctx)
		bot, err := telegram.NewBot(ctx, tgCfg, a.agent, a.router, a.index, a.loader)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize telegram bot")
		}
		services = append(services, bot)
	}

	if a.cfg.EnableCLI {
		rl, err := cli.NewReadLine(a.agent, a.router, a.cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize readline")
		}
		services = append(services, srv.Foreground(rl, stop))
	}

	if len(services) == 0 {
		logger.Warn().Msg("no transport enabled, set ENABLE_CLI or ENABLE_TELEGRAM")
	}
	return services
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
