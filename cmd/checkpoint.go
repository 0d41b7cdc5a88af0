package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/priyam-jain-2002/vibemarket/internal/checkpoint"
	"github.com/priyam-jain-2002/vibemarket/internal/model"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect run checkpoints",
}

// -- checkpoint list --

var checkpointListCmd = &cobra.Command{
	Use:   "list",
	Short: "List run checkpoints, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := checkpoint.Open(ctx, cfg.Checkpoint.Driver, cfg.Checkpoint.Dir, cfg.Checkpoint.DatabaseURL)
		if err != nil {
			return eris.Wrap(err, "open checkpoint store")
		}
		defer st.Close() //nolint:errcheck

		cps, err := st.List(ctx)
		if err != nil {
			return eris.Wrap(err, "checkpoint list")
		}
		if len(cps) == 0 {
			fmt.Fprintln(os.Stderr, "No checkpoints found.")
			return nil
		}
		formatCheckpointList(stdout, cps)
		return nil
	},
}

// -- checkpoint show --

var checkpointShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print a run checkpoint as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := checkpoint.Open(ctx, cfg.Checkpoint.Driver, cfg.Checkpoint.Dir, cfg.Checkpoint.DatabaseURL)
		if err != nil {
			return eris.Wrap(err, "open checkpoint store")
		}
		defer st.Close() //nolint:errcheck

		cp, err := st.Load(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "checkpoint show")
		}
		if cp == nil {
			return eris.Errorf("no checkpoint for run %s", args[0])
		}

		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cp)
	},
}

func init() {
	checkpointCmd.AddCommand(checkpointListCmd)
	checkpointCmd.AddCommand(checkpointShowCmd)
	rootCmd.AddCommand(checkpointCmd)
}

// formatCheckpointList writes a tabular list of checkpoints to out.
func formatCheckpointList(out io.Writer, cps []*model.RunCheckpoint) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tSTAGE\tSOURCE\tQUERY\tPROCESSED\tPENDING\tSPENT\tUPDATED")
	for _, cp := range cps {
		pending := 0
		for _, l := range cp.Pending {
			if !cp.IsProcessed(l.IdentityKey) {
				pending++
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t$%.4f\t%s\n",
			cp.RunID,
			cp.Stage,
			cp.Source,
			truncate(cp.Query, 32),
			len(cp.ProcessedIdentityKeys),
			pending,
			cp.BudgetSpent,
			cp.LastUpdated.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
