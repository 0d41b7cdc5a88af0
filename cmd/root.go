package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/priyam-jain-2002/vibemarket/internal/config"
)

var cfg *config.Config

// stdout receives command output; tests swap it.
var stdout io.Writer = os.Stdout

var rootCmd = &cobra.Command{
	Use:   "vibemarket",
	Short: "Lead harvesting, qualification and outreach pipeline",
	Long:  "Harvests leads from social search, dedupes them against prior runs, qualifies them with Claude against a pain taxonomy, and drafts vibe-matched outreach for the best ones.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
