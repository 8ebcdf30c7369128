package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/mikey/inbox-assistant/internal/adapters/store"
	"github.com/mikey/inbox-assistant/internal/core"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userPutCmd, userListCmd)

	userPutCmd.Flags().String("file", "", "JSON user document (stdin when empty)")
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage the users the pipeline runs for",
}

var userPutCmd = &cobra.Command{
	Use:   "put",
	Short: "Create or replace a user from a JSON document",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")

		var r io.Reader = os.Stdin
		if path != "" {
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open %s: %w", path, err)
			}
			defer file.Close()
			r = file
		}

		var user core.User
		if err := json.NewDecoder(r).Decode(&user); err != nil {
			return fmt.Errorf("decode user: %w", err)
		}
		if user.ID == "" {
			return fmt.Errorf("user id is required")
		}

		return invoke(func(repo store.Repository) error {
			if err := repo.UpsertUser(cmd.Context(), &user); err != nil {
				return fmt.Errorf("save user: %w", err)
			}
			fmt.Fprintf(os.Stdout, "User %q saved.\n", user.ID)
			return nil
		})
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return invoke(func(repo store.Repository) error {
			users, err := repo.ListUsers(cmd.Context())
			if err != nil {
				return fmt.Errorf("list users: %w", err)
			}
			if len(users) == 0 {
				fmt.Println("No users configured.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tEMAIL\tTIMEZONE\tCALENDAR\tDELIVERY")
			for _, u := range users {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", u.ID, u.Email, u.Timezone, u.CalendarID, u.CalendarDeliveryEnabled)
			}
			return w.Flush()
		})
	},
}
