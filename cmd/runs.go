package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/hsiehdog/travel-coordination-back/internal/model"
	"github.com/hsiehdog/travel-coordination-back/internal/monitoring"
	"github.com/hsiehdog/travel-coordination-back/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the oracle run audit log",
}

var runsListCmd = &cobra.Command{
	Use:   "list <trip-id>",
	Short: "List runs for a trip, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		kind, _ := cmd.Flags().GetString("kind")
		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.ListRuns(ctx, store.RunFilter{
			TripID: args[0],
			Kind:   model.RunKind(strings.ToUpper(kind)),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		if table, _ := cmd.Flags().GetBool("table"); table {
			formatRunsList(os.Stdout, runs)
			return nil
		}
		return writeOutput(os.Stdout, outputFormat, runs)
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run including its output payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		return writeOutput(os.Stdout, outputFormat, run)
	},
}

var runsStatsCmd = &cobra.Command{
	Use:   "stats <trip-id>",
	Short: "Summarize run outcomes and raise threshold alerts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		snap, err := monitoring.NewCollector(st, 0).Collect(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}
		alerts := monitoring.Evaluate(snap, monitoring.DefaultThresholds())
		if table, _ := cmd.Flags().GetBool("table"); table {
			formatRunStats(os.Stdout, snap, alerts)
			return nil
		}
		return writeOutput(os.Stdout, outputFormat, struct {
			Stats  *monitoring.Snapshot `json:"stats" yaml:"stats"`
			Alerts []monitoring.Alert   `json:"alerts" yaml:"alerts"`
		}{snap, alerts})
	},
}

func formatRunStats(out io.Writer, s *monitoring.Snapshot, alerts []monitoring.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Success:\t%d\n", s.Success)
	_, _ = fmt.Fprintf(w, "Failed:\t%d (%.1f%%)\n", s.Failed, s.FailRate*100)
	_, _ = fmt.Fprintf(w, "  Model output:\t%d\n", s.FailureClasses[monitoring.FailureModelOutput])
	_, _ = fmt.Fprintf(w, "  Oracle:\t%d\n", s.FailureClasses[monitoring.FailureOracle])
	_, _ = fmt.Fprintf(w, "Clarifications:\t%d\n", s.Clarifications)
	_, _ = fmt.Fprintf(w, "Open pending:\t%d\n", s.OpenPending)
	for _, a := range alerts {
		_, _ = fmt.Fprintf(w, "ALERT [%s]:\t%s\n", a.Severity, a.Message)
	}
	_ = w.Flush()
}

func formatRunsList(out io.Writer, runs []model.ReconstructRun) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tSTATUS\tCREATED\tINPUT")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t-------\t-----")
	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID), r.Kind, r.Status,
			r.CreatedAt.Format(time.DateTime), preview(r.RawInput, 40))
	}
	_ = w.Flush()
}

// preview returns the first line of s, cut to n runes.
func preview(s string, n int) string {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "\n")
	r := []rune(s)
	if len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

func init() {
	runsListCmd.Flags().String("kind", "", "filter by kind (RECONSTRUCT, PATCH, DIAGNOSTICS, RESOLVE)")
	runsListCmd.Flags().Int("limit", 20, "maximum runs to list")
	runsListCmd.Flags().Bool("table", false, "print a table instead of --format output")
	runsStatsCmd.Flags().Bool("table", false, "print a summary instead of --format output")
	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
}
