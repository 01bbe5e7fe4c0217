package main

import (
	"github.com/sandevgo/localrag/internal/config"
	"github.com/sandevgo/localrag/internal/service/installer"
	"github.com/sandevgo/localrag/pkg/log"
	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:           "install",
	Short:         "Configure providers and storage interactively",
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()

		logger := log.FromCtx(ctx)
		logger.Info().Msg("starting installation process")

		// run wizard (includes save step)
		if _, err := installer.RunWizard(); err != nil {
			return err
		}

		runtimePath := config.GetRuntimePath()
		logger.Info().Str("env", config.EnvPath(runtimePath)).Msgf("initialized runtime directory at: %s", runtimePath)
		logger.Info().Msg("Installation complete! You can now run 'localrag chat'.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(installCmd)
}
