package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/hsiehdog/travel-coordination-back/internal/model"
)

var tripCmd = &cobra.Command{
	Use:   "trip",
	Short: "Manage trips",
}

var tripCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a trip",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		user, _ := cmd.Flags().GetString("user")
		tz, _ := cmd.Flags().GetString("timezone")
		if _, err := loadZone(tz); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		trip := &model.Trip{UserID: user, Title: args[0], Timezone: tz}
		if err := st.CreateTrip(ctx, trip); err != nil {
			return eris.Wrap(err, "trip create")
		}
		return writeOutput(os.Stdout, outputFormat, trip)
	},
}

var tripShowCmd = &cobra.Command{
	Use:   "show <trip-id>",
	Short: "Show a trip",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		trip, err := st.GetTrip(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "trip show")
		}
		return writeOutput(os.Stdout, outputFormat, trip)
	},
}

func init() {
	tripCreateCmd.Flags().String("user", "cli", "owning user id")
	tripCreateCmd.Flags().String("timezone", "UTC", "IANA timezone of the traveller")
	tripCmd.AddCommand(tripCreateCmd, tripShowCmd)
	rootCmd.AddCommand(tripCmd)
}
