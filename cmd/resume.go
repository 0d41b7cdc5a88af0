package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/priyam-jain-2002/vibemarket/internal/checkpoint"
	"github.com/priyam-jain-2002/vibemarket/internal/model"
	"github.com/priyam-jain-2002/vibemarket/internal/pipeline"
)

var (
	resumeFile   string
	resumeOutput string
)

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Continue an interrupted run from its checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("resume"); err != nil {
			return err
		}

		// The checkpoint decides the source and query.
		st, err := checkpoint.Open(ctx, cfg.Checkpoint.Driver, cfg.Checkpoint.Dir, cfg.Checkpoint.DatabaseURL)
		if err != nil {
			return eris.Wrap(err, "open checkpoint store")
		}
		cp, err := st.Load(ctx, args[0])
		_ = st.Close()
		if err != nil {
			return eris.Wrap(err, "load checkpoint")
		}
		if cp == nil {
			return eris.Wrapf(pipeline.ErrNoCheckpoint, "run %s", args[0])
		}

		source := cp.Source
		if source == "" {
			source = model.Source(cfg.Search.Source)
		}
		a, err := newApp(ctx, cfg, appSpec{
			source:     source,
			query:      cp.Query,
			manualPath: resumeFile,
			outputPath: outputPath(resumeOutput),
		})
		if err != nil {
			return err
		}

		zap.L().Info("run resuming", zap.String("run_id", cp.RunID), zap.String("stage", string(cp.Stage)))
		summary, runErr := a.pipe.Resume(ctx, cp.RunID)
		if err := a.Close(); err != nil {
			zap.L().Error("close run outputs", zap.Error(err))
			if runErr == nil {
				runErr = eris.Wrap(err, "close run outputs")
			}
		}
		return printSummary(summary, runErr)
	},
}

func init() {
	resumeCmd.Flags().StringVar(&resumeFile, "file", "", "lead file, when the run harvests the manual source")
	resumeCmd.Flags().StringVar(&resumeOutput, "output", "", "JSON output path (overrides output.path)")
	rootCmd.AddCommand(resumeCmd)
}
