// Command ragctl runs ingestion and index maintenance without the HTTP server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"rag-chat/internal/app"
	"rag-chat/internal/config"
	"rag-chat/internal/logger"

	"github.com/spf13/cobra"
)

var (
	namespaceFlag string
	logLevelFlag  string
)

var rootCmd = &cobra.Command{
	Use:           "ragctl",
	Short:         "Maintain the retrieval chat index and its permissions",
	Long:          `Seed the vector index, inspect or clear namespaces, and grant or revoke access to vectors.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&namespaceFlag, "namespace", "n", "", "Vector namespace (defaults to VECTOR_NAMESPACE)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (defaults to LOG_LEVEL)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// withApp loads config, builds the services and runs fn with them
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	logger.Init(logger.Config{Level: level, JSON: cfg.LogJSON})
	if cmd.Flags().Changed("namespace") {
		cfg.Namespace = namespaceFlag
	}

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	a.Start()
	defer a.Close()

	return fn(cmd.Context(), a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
