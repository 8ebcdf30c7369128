package main

import (
	"fmt"

	"github.com/mikey/inbox-assistant/internal/adapters/store"
	"github.com/mikey/inbox-assistant/internal/core"
	"github.com/mikey/inbox-assistant/internal/di"
	"github.com/mikey/inbox-assistant/internal/scheduler"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Bool("run-now", false, "run a processing pass for every user before waiting on the schedule")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler for every user until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runNow, _ := cmd.Flags().GetBool("run-now")

		container, err := di.BuildServiceContainer(flags)
		if err != nil {
			return fmt.Errorf("failed to build dependency container: %w", err)
		}

		return container.Invoke(func(
			logger *zap.Logger,
			sched *scheduler.Scheduler,
			repo store.Repository,
			extractors *core.ExtractorSet,
		) error {
			defer logger.Sync()

			ctx := cmd.Context()

			if runNow {
				if _, err := sched.RunProcessAll(ctx); err != nil {
					logger.Error("Initial processing pass failed", zap.Error(err))
				}
			}

			if err := sched.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			logger.Info("Shutting down...")

			sched.Stop()

			if err := extractors.Close(); err != nil {
				logger.Error("Failed to close extractors", zap.Error(err))
			}
			if err := repo.Close(); err != nil {
				logger.Error("Failed to close store", zap.Error(err))
			}

			logger.Info("Shutdown complete")
			return nil
		})
	},
}
