package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/hsiehdog/travel-coordination-back/internal/patch"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <trip-id> [text]",
	Short: "Reconcile free-text trip information with the itinerary",
	Long:  "Reads the update from the argument, or from --file, or from stdin when neither is given.",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		file, _ := cmd.Flags().GetString("file")
		text, err := readUpdateText(args[1:], file, os.Stdin)
		if err != nil {
			return err
		}
		tz, _ := cmd.Flags().GetString("timezone")
		if tz != "" {
			if _, err := loadZone(tz); err != nil {
				return err
			}
		}
		mode, _ := cmd.Flags().GetString("mode")
		now, err := parseNow(cmd)
		if err != nil {
			return err
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Engine.Ingest(ctx, patch.IngestRequest{
			TripID:   args[0],
			Text:     text,
			Timezone: tz,
			Now:      now,
			Mode:     patch.Mode(mode),
		})
		if err != nil {
			return eris.Wrap(err, "ingest")
		}
		return writeOutput(os.Stdout, outputFormat, res)
	},
}

func readUpdateText(args []string, file string, stdin io.Reader) (string, error) {
	switch {
	case len(args) > 0:
		return args[0], nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return "", eris.Wrapf(err, "read %s", file)
		}
		return string(b), nil
	}
	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", eris.Wrap(err, "read stdin")
	}
	if strings.TrimSpace(string(b)) == "" {
		return "", eris.New("no update text given")
	}
	return string(b), nil
}

func parseNow(cmd *cobra.Command) (time.Time, error) {
	raw, _ := cmd.Flags().GetString("now")
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "--now must be RFC3339, got %q", raw)
	}
	return t, nil
}

func loadZone(tz string) (*time.Location, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, eris.Wrapf(err, "unknown timezone %q", tz)
	}
	return loc, nil
}

func init() {
	ingestCmd.Flags().String("file", "", "read the update from a file")
	ingestCmd.Flags().String("timezone", "", "traveller timezone (default: the trip's)")
	ingestCmd.Flags().String("mode", string(patch.ModeAuto), "auto, reconstruct or patch")
	ingestCmd.Flags().String("now", "", "reference time for relative dates, RFC3339 (default: now)")
	rootCmd.AddCommand(ingestCmd)
}
