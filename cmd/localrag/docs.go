package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sandevgo/localrag/internal/core"
	"github.com/sandevgo/localrag/internal/service/watcher"
	"github.com/sandevgo/localrag/pkg/log"
	"github.com/spf13/cobra"
)

var textName string

var indexCmd = &cobra.Command{
	Use:   "index <path>...",
	Short: "Index files or directories",
	Long: `Loads, chunks and embeds .txt, .md and .html files. Directories are
walked recursively. Use "-" to index text read from stdin.`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, app *App) error {
			var failed int
			for _, path := range args {
				if err := indexPath(ctx, cmd, app, path); err != nil {
					log.FromCtx(ctx).Error().Err(err).Str("path", path).Msg("indexing failed")
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d inputs failed", failed, len(args))
			}
			return nil
		})
	},
}

func indexPath(ctx context.Context, cmd *cobra.Command, app *App, path string) error {
	out := cmd.OutOrStdout()

	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return err
		}
		doc, ok := app.loader.FromText(string(data), textName)
		if !ok {
			return errors.New("stdin is empty")
		}
		id, _, err := app.index.IndexSource(ctx, doc)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\t%s\n", id, doc.Metadata.String(core.MetaFilename))
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		w, err := watcher.New(path, app.index, app.loader)
		if err != nil {
			return err
		}
		return w.Sync(ctx)
	}

	doc, ok, err := app.loader.LoadFile(ctx, path)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(out, "skipped\t%s (empty)\n", path)
		return nil
	}
	id, ok, err := app.index.IndexSource(ctx, doc)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(out, "skipped\t%s (empty)\n", path)
		return nil
	}
	fmt.Fprintf(out, "%s\t%s\n", id, path)
	return nil
}

var deindexCmd = &cobra.Command{
	Use:          "deindex <doc_id>",
	Short:        "Remove a document from the index",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, app *App) error {
			removed, err := app.index.Deindex(ctx, args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("document %s is not indexed", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed\t%s\n", args[0])
			return nil
		})
	},
}

var docsCmd = &cobra.Command{
	Use:          "docs",
	Short:        "List indexed documents",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, app *App) error {
			reply, _ := app.router.Execute(ctx, cliSessionID, "/docs")
			printMarkdown(cmd, reply)
			return nil
		})
	},
}

func init() {
	indexCmd.Flags().StringVarP(&textName, "name", "n", "stdin", "document name for text read from stdin")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(deindexCmd)
	rootCmd.AddCommand(docsCmd)
}
