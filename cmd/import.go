package main

import (
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/priyam-jain-2002/vibemarket/internal/model"
)

var (
	importRunID  string
	importOutput string
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Qualify manually collected leads from a YAML or JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("import"); err != nil {
			return err
		}
		// Every lead in the file is imported.
		cfg.Search.Limit = 0
		id := importRunID
		if id == "" {
			id = uuid.NewString()
		}
		return startRun(ctx, id, appSpec{
			source:     model.SourceManual,
			query:      "manual import",
			manualPath: args[0],
			outputPath: outputPath(importOutput),
		})
	},
}

func init() {
	importCmd.Flags().StringVar(&importRunID, "run-id", "", "run id (default: a new UUID)")
	importCmd.Flags().StringVar(&importOutput, "output", "", "JSON output path (overrides output.path)")
	rootCmd.AddCommand(importCmd)
}
