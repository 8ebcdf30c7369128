package main

import (
	"github.com/mikey/inbox-assistant/internal/core"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().String("user", "", "user id (required)")
	_ = sweepCmd.MarkFlagRequired("user")
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove past events and complete past-due todos for one user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")

		return invoke(func(sweeper *core.Sweeper) error {
			result, err := sweeper.CleanupPastItems(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return printJSON(result)
		})
	},
}
