package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/hsiehdog/travel-coordination-back/internal/model"
	"github.com/hsiehdog/travel-coordination-back/internal/patch"
	"github.com/hsiehdog/travel-coordination-back/internal/store"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Inspect and resolve clarification requests",
}

var pendingListCmd = &cobra.Command{
	Use:   "list <trip-id>",
	Short: "List open pending actions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		pending, err := st.ListPending(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "pending list")
		}
		if table, _ := cmd.Flags().GetBool("table"); table {
			formatPending(os.Stdout, pending)
			return nil
		}
		return writeOutput(os.Stdout, outputFormat, pending)
	},
}

var pendingResolveCmd = &cobra.Command{
	Use:   "resolve <trip-id> <pending-id> <item-id>",
	Short: "Apply a pending action to the selected candidate item",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Engine.ResolvePending(ctx, patch.ResolveRequest{
			TripID:         args[0],
			PendingID:      args[1],
			SelectedItemID: args[2],
		})
		if err != nil {
			return eris.Wrap(err, "pending resolve")
		}
		return writeOutput(os.Stdout, outputFormat, res)
	},
}

var pendingDiscardCmd = &cobra.Command{
	Use:   "discard <trip-id> <pending-id>",
	Short: "Drop a pending action without applying it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := discardPending(ctx, st, args[0], args[1])
		if err != nil {
			return err
		}
		return writeOutput(os.Stdout, outputFormat, res)
	},
}

// discardPending never consults the oracle, so no gateway is configured.
func discardPending(ctx context.Context, st store.Store, tripID, pendingID string) (*patch.Result, error) {
	res, err := patch.NewEngine(st, nil, cfg.Patch).DiscardPending(ctx, tripID, pendingID)
	if err != nil {
		return nil, eris.Wrap(err, "pending discard")
	}
	return res, nil
}

func formatPending(out io.Writer, pending []model.PendingAction) {
	if len(pending) == 0 {
		fmt.Fprintln(out, "No pending actions.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, p := range pending {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.IntentType, p.Reason)
		for _, c := range p.Candidates {
			_, _ = fmt.Fprintf(w, "  %s\t%.2f\t%s %s %s\n", c.ItemID, c.Score, c.Kind, c.Title, c.LocalDate)
		}
	}
	_ = w.Flush()
}

func init() {
	pendingListCmd.Flags().Bool("table", false, "print a table instead of --format output")
	pendingCmd.AddCommand(pendingListCmd, pendingResolveCmd, pendingDiscardCmd)
	rootCmd.AddCommand(pendingCmd)
}
