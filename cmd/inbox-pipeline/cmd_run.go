package main

import (
	"fmt"
	"time"

	"github.com/mikey/inbox-assistant/internal/adapters/store"
	"github.com/mikey/inbox-assistant/internal/core"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("user", "", "user id (required)")
	runCmd.Flags().Int("max-results", 0, "maximum emails to fetch (default from config)")
	runCmd.Flags().Duration("since", 0, "only fetch email newer than this (default from config)")
	_ = runCmd.MarkFlagRequired("user")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process recent email for one user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		maxResults, _ := cmd.Flags().GetInt("max-results")
		since, _ := cmd.Flags().GetDuration("since")

		return invoke(func(repo store.Repository, orchestrator *core.Orchestrator, extractors *core.ExtractorSet) error {
			defer extractors.Close()

			ctx := cmd.Context()
			user, err := repo.GetUser(ctx, userID)
			if err != nil {
				return fmt.Errorf("load user %s: %w", userID, err)
			}

			opts := core.ProcessOptions{
				MaxResults: maxResults,
				AIProvider: flags.Provider,
			}
			if since > 0 {
				opts.DateRange.From = time.Now().Add(-since)
			}

			result, runErr := orchestrator.ProcessEmails(ctx, user.ID, user.AuthContext(), opts)
			if err := printJSON(result); err != nil {
				return err
			}
			return runErr
		})
	},
}
