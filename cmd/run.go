package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/priyam-jain-2002/vibemarket/internal/model"
)

var (
	runQuery  string
	runLimit  int
	runSource string
	runID     string
	runFile   string
	runOutput string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Harvest, qualify and draft outreach for a new run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyRunFlags(cmd)
		if err := cfg.Validate("run"); err != nil {
			return err
		}
		id := runID
		if id == "" {
			id = uuid.NewString()
		}
		return startRun(ctx, id, appSpec{
			source:     model.Source(cfg.Search.Source),
			query:      cfg.Search.Query,
			manualPath: runFile,
			outputPath: outputPath(runOutput),
		})
	},
}

// applyRunFlags lets explicit flags override the loaded config.
func applyRunFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("query") {
		cfg.Search.Query = runQuery
	}
	if cmd.Flags().Changed("limit") {
		cfg.Search.Limit = runLimit
	}
	if cmd.Flags().Changed("source") {
		cfg.Search.Source = runSource
	}
}

func outputPath(flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.Output.Path
}

func startRun(ctx context.Context, id string, spec appSpec) error {
	a, err := newApp(ctx, cfg, spec)
	if err != nil {
		return err
	}

	zap.L().Info("run starting", zap.String("run_id", id), zap.String("source", string(spec.source)))
	summary, runErr := a.pipe.Run(ctx, id)
	if err := a.Close(); err != nil {
		zap.L().Error("close run outputs", zap.Error(err))
		if runErr == nil {
			runErr = eris.Wrap(err, "close run outputs")
		}
	}
	return printSummary(summary, runErr)
}

func init() {
	runCmd.Flags().StringVar(&runQuery, "query", "", "search query (overrides search.query)")
	runCmd.Flags().IntVar(&runLimit, "limit", 50, "max fragments to harvest (overrides search.limit)")
	runCmd.Flags().StringVar(&runSource, "source", "", "lead source: linkedin, reddit or manual")
	runCmd.Flags().StringVar(&runID, "run-id", "", "run id (default: a new UUID)")
	runCmd.Flags().StringVar(&runFile, "file", "", "lead file for the manual source")
	runCmd.Flags().StringVar(&runOutput, "output", "", "JSON output path (overrides output.path)")
	rootCmd.AddCommand(runCmd)
}
