package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/hsiehdog/travel-coordination-back/internal/model"
	"github.com/hsiehdog/travel-coordination-back/internal/patch"
	"github.com/hsiehdog/travel-coordination-back/internal/store"
)

var itemsCmd = &cobra.Command{
	Use:   "items <trip-id>",
	Short: "List a trip's itinerary items",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		states, _ := cmd.Flags().GetStringSlice("state")
		filter, err := parseStates(states)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		items, err := st.ListItems(ctx, args[0], filter)
		if err != nil {
			return eris.Wrap(err, "items")
		}
		if table, _ := cmd.Flags().GetBool("table"); table {
			formatItems(os.Stdout, items)
			return nil
		}
		return writeOutput(os.Stdout, outputFormat, items)
	},
}

var confirmCmd = &cobra.Command{
	Use:   "confirm <trip-id> <item-id>",
	Short: "Mark an item CONFIRMED",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		it, err := confirmItem(ctx, st, args[0], args[1])
		if err != nil {
			return err
		}
		return writeOutput(os.Stdout, outputFormat, it)
	},
}

func parseStates(raw []string) (store.ItemFilter, error) {
	var filter store.ItemFilter
	for _, s := range raw {
		state := model.ItemState(strings.ToUpper(strings.TrimSpace(s)))
		if !state.Valid() {
			return filter, eris.Errorf("unknown item state %q", s)
		}
		filter.States = append(filter.States, state)
	}
	return filter, nil
}

func formatItems(out io.Writer, items []model.TripItem) {
	if len(items) == 0 {
		fmt.Fprintln(out, "No items.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tSTATE\tSTART\tTITLE")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t-----\t-----")
	for _, it := range items {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncateID(it.ID), it.Kind, it.State, formatStart(it), it.Title)
	}
	_ = w.Flush()
}

func formatStart(it model.TripItem) string {
	switch {
	case it.StartLocalDate != "" && it.StartLocalTime != "":
		return it.StartLocalDate + " " + it.StartLocalTime
	case it.StartLocalDate != "":
		return it.StartLocalDate
	case it.StartAt != nil:
		return it.StartAt.Format(time.RFC3339)
	}
	return "-"
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	itemsCmd.Flags().StringSlice("state", nil, "filter by state (PROPOSED, CONFIRMED, DISMISSED, CANCELLED)")
	itemsCmd.Flags().Bool("table", false, "print a table instead of --format output")
	rootCmd.AddCommand(itemsCmd, confirmCmd)
}

// confirmItem never consults the oracle, so no gateway is configured.
func confirmItem(ctx context.Context, st store.Store, tripID, itemID string) (*model.TripItem, error) {
	it, err := patch.NewEngine(st, nil, cfg.Patch).ConfirmItem(ctx, tripID, itemID)
	if err != nil {
		return nil, eris.Wrap(err, "confirm")
	}
	return it, nil
}
