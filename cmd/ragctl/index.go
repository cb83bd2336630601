package main

import (
	"context"

	"rag-chat/internal/app"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect and maintain the vector index",
}

var indexEnsureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Create the index if it does not exist and print its stats",
	Args:  cobra.NoArgs,
	RunE:  runIndexEnsure,
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print vector counts for the namespace",
	Args:  cobra.NoArgs,
	RunE:  runIndexStats,
}

var indexClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every vector in the namespace",
	Long:  `Deletes all vectors of one namespace. Relations in the directory are left in place.`,
	Args:  cobra.NoArgs,
	RunE:  runIndexClear,
}

func init() {
	indexCmd.AddCommand(indexEnsureCmd)
	indexCmd.AddCommand(indexStatsCmd)
	indexCmd.AddCommand(indexClearCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexEnsure(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if err := a.Index.EnsureIndex(ctx, a.Config.IndexSpec()); err != nil {
			return err
		}
		stats, err := a.Index.DescribeStats(ctx, a.Config.Namespace)
		if err != nil {
			return err
		}
		return printJSON(cmd, stats)
	})
}

func runIndexStats(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		stats, err := a.Index.DescribeStats(ctx, a.Config.Namespace)
		if err != nil {
			return err
		}
		return printJSON(cmd, stats)
	})
}

func runIndexClear(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		if err := a.Index.DeleteAll(ctx, a.Config.Namespace); err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{"namespace": a.Config.Namespace, "cleared": true})
	})
}
