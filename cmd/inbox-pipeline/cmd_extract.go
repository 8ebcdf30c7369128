package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mikey/inbox-assistant/internal/adapters/mailfile"
	"github.com/mikey/inbox-assistant/internal/core"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().String("timezone", "UTC", "timezone used to resolve relative dates")
}

var extractCmd = &cobra.Command{
	Use:   "extract [file.eml ...]",
	Short: "Extract events and todos from message files without storing them",
	Long:  "Reads one or more RFC 5322 message files (stdin when none are given), runs the configured extractor over them as one batch and prints the result.",
	RunE: func(cmd *cobra.Command, args []string) error {
		timezone, _ := cmd.Flags().GetString("timezone")

		emails, err := readMessages(args)
		if err != nil {
			return err
		}

		return invoke(func(logger *zap.Logger, extractors *core.ExtractorSet) error {
			defer extractors.Close()

			extractor, err := extractors.Get(flags.Provider)
			if err != nil {
				return err
			}

			started := time.Now()
			result, err := extractor.Extract(cmd.Context(), emails, core.ExtractOptions{
				Timezone: timezone,
				Now:      started,
			})
			if err != nil {
				return fmt.Errorf("extract: %w", err)
			}
			logger.Info("Extraction finished",
				zap.Int("emails", len(emails)),
				zap.Int("events", len(result.Events)),
				zap.Int("todos", len(result.Todos)),
				zap.Duration("duration", time.Since(started)))

			return printJSON(result)
		})
	},
}

func readMessages(paths []string) ([]core.Email, error) {
	if len(paths) == 0 {
		email, err := mailfile.ParseMessage(os.Stdin, "stdin")
		if err != nil {
			return nil, err
		}
		return []core.Email{email}, nil
	}

	emails := make([]core.Email, 0, len(paths))
	for _, path := range paths {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		email, err := mailfile.ParseMessage(file, path)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		emails = append(emails, email)
	}
	return emails, nil
}
