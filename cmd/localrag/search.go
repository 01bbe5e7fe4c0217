package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/sandevgo/localrag/internal/service/command"
	"github.com/sandevgo/localrag/internal/service/memory"
	"github.com/spf13/cobra"
)

const cliSessionID = "cli-oneshot"

var (
	searchLimit int
	searchDocs  bool
	searchDocID string
)

var searchCmd = &cobra.Command{
	Use:          "search <query>",
	Short:        "Search conversation memory and documents",
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		if searchLimit <= 0 {
			return fmt.Errorf("limit must be positive, got %d", searchLimit)
		}

		return runWithApp(cmd, func(ctx context.Context, app *App) error {
			var (
				hits []memory.Hit
				err  error
			)
			if searchDocs || searchDocID != "" {
				hits, err = app.index.Search(ctx, query, searchLimit, searchDocID)
			} else {
				hits, err = app.store.Search(ctx, memory.Query{Text: query, Limit: searchLimit})
			}
			if err != nil {
				return err
			}
			printMarkdown(cmd, command.FormatHits(query, hits))
			return nil
		})
	},
}

var contextCmd = &cobra.Command{
	Use:          "context <query>",
	Short:        "Show the context retrieved for a query",
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, app *App) error {
			reply, _ := app.router.Execute(ctx, cliSessionID, "/context "+strings.Join(args, " "))
			printMarkdown(cmd, reply)
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:          "stats",
	Short:        "Show memory statistics",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd, func(ctx context.Context, app *App) error {
			reply, _ := app.router.Execute(ctx, cliSessionID, "/stats")
			printMarkdown(cmd, reply)

			docs, err := app.index.Documents(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Documents: %d\nModel: %s/%s\n",
				len(docs), app.llmCfg.Settings().Provider, app.provider.GetModel())
			return nil
		})
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "number of results")
	searchCmd.Flags().BoolVar(&searchDocs, "docs", false, "search document chunks only")
	searchCmd.Flags().StringVar(&searchDocID, "doc", "", "search a single document by id")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(statsCmd)
}
