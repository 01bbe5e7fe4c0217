package main

import (
	"os"
	"os/signal"

	"github.com/sandevgo/localrag/internal/service/watcher"
	"github.com/sandevgo/localrag/pkg/log"
	"github.com/sandevgo/localrag/pkg/srv"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Keep a directory indexed",
	Long: `Indexes every supported file under the directory, then follows
changes until interrupted. Deleted files are removed from the index.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()

		app := NewApp(ctx)
		w, err := watcher.New(args[0], app.index, app.loader)
		if err != nil {
			app.Close(ctx)
			return err
		}
		services := append(app.services, w)

		srv.StartServices(ctx, services)
		srv.ShutdownServices(ctx, services)
		log.FromCtx(ctx).Info().Msg("watcher stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
