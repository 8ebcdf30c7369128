package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikey/inbox-assistant/internal/adapters/store"
	"github.com/mikey/inbox-assistant/internal/di"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var flags = &di.CLIFlags{}

var rootCmd = &cobra.Command{
	Use:           "inbox-pipeline",
	Short:         "Turn inbox email into calendar events and todos",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.ConfigFile, "config", "", "path to config file (default: search standard paths)")
	pf.StringVar(&flags.Provider, "provider", "", "AI provider override (openai, gemini, bedrock)")
	pf.StringVar(&flags.StoreType, "store", "", "store type override (memory, sqlite, mysql, postgres)")
	pf.BoolVar(&flags.Verbose, "verbose", false, "enable verbose logging")
	pf.BoolVar(&flags.JSONLog, "json-log", false, "output logs in JSON format")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// invoke builds the CLI container and runs fn with its dependencies injected
func invoke(fn interface{}) error {
	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		return fmt.Errorf("failed to build dependency container: %w", err)
	}
	defer container.Invoke(func(logger *zap.Logger, repo store.Repository) {
		if err := repo.Close(); err != nil {
			logger.Error("Failed to close store", zap.Error(err))
		}
		logger.Sync()
	})
	return container.Invoke(fn)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
