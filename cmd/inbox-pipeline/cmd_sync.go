package main

import (
	"fmt"

	"github.com/mikey/inbox-assistant/internal/adapters/store"
	"github.com/mikey/inbox-assistant/internal/config"
	"github.com/mikey/inbox-assistant/internal/core"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().String("user", "", "user id (required)")
	_ = syncCmd.MarkFlagRequired("user")
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Retry delivery of pending and failed events for one user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")

		return invoke(func(repo store.Repository, delivery *core.DeliveryEngine, pc config.PipelineConfig) error {
			ctx := cmd.Context()
			user, err := repo.GetUser(ctx, userID)
			if err != nil {
				return fmt.Errorf("load user %s: %w", userID, err)
			}

			result, err := delivery.SyncPendingEventsForUser(ctx, user.ID, user.AuthContext(), pc.MaxRetries)
			if err != nil {
				return err
			}
			return printJSON(result)
		})
	},
}
