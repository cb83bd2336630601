package main

import (
	"context"
	"errors"

	"rag-chat/internal/app"
	"rag-chat/internal/config"
	"rag-chat/internal/loader"
	"rag-chat/internal/models"
	"rag-chat/internal/services"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Ingest a CSV file into the index",
	Long: `Splits every row of the CSV (url, content, title, category), embeds the chunks,
upserts them in batches and grants the users of the ownership file access by category.`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

var (
	seedCSV          string
	seedOwnership    string
	seedMethod       string
	seedChunkSize    int
	seedChunkOverlap int
)

func init() {
	seedCmd.Flags().StringVar(&seedCSV, "csv", "", "CSV file to ingest (defaults to SEED_CSV)")
	seedCmd.Flags().StringVar(&seedOwnership, "ownership", "", "Ownership YAML file (defaults to OWNERSHIP_FILE)")
	seedCmd.Flags().StringVar(&seedMethod, "method", "", "Splitting method: markdown or recursive")
	seedCmd.Flags().IntVar(&seedChunkSize, "chunk-size", 0, "Chunk size for the recursive splitter")
	seedCmd.Flags().IntVar(&seedChunkOverlap, "chunk-overlap", 0, "Chunk overlap for the recursive splitter")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		path := a.Config.SeedCSVPath
		if seedCSV != "" {
			path = seedCSV
		}
		if path == "" {
			return errors.New("no CSV file given: pass --csv or set SEED_CSV")
		}

		ownership := a.Ownership
		if seedOwnership != "" {
			loaded, err := config.LoadOwnership(seedOwnership)
			if err != nil {
				return err
			}
			ownership = loaded
		}

		splitter := a.Config.SplitterConfig()
		if cmd.Flags().Changed("method") {
			splitter.Method = models.SplittingMethod(seedMethod)
		}
		if cmd.Flags().Changed("chunk-size") {
			splitter.ChunkSize = seedChunkSize
		}
		if cmd.Flags().Changed("chunk-overlap") {
			splitter.ChunkOverlap = seedChunkOverlap
		}

		result, err := a.Ingest.Ingest(ctx, services.IngestRequest{
			Source:    loader.NewCSVSource(path),
			Splitter:  splitter,
			Ownership: *ownership,
			Namespace: a.Config.Namespace,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{
			"pages":     result.Pages,
			"chunks":    result.Chunks,
			"vectors":   result.Vectors,
			"relations": result.Relations,
		})
	})
}
