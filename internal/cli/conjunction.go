package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/ascas/internal/api"
)

type conjunctionOptions struct {
	remoteOptions
	Epoch  string
	Window time.Duration
}

// NewConjunctionCommand creates the conjunction command.
func NewConjunctionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &conjunctionOptions{}

	cmd := &cobra.Command{
		Use:           "conjunction <sat1-id> <sat2-id>",
		Short:         "Find the closest approach of two objects in a time window",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			start, err := parseEpochFlag(opts.Epoch)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()

			resp, err := opts.client().Conjunction(ctx, args[0], args[1], start, opts.Window)
			if err != nil {
				_ = formatter.Error(errorCode(err), err.Error(), nil)
				return WrapExitError(ExitFailure, "conjunction search failed", err)
			}
			return formatter.Success(resp, func(w io.Writer) error {
				writeConjunction(w, resp)
				return nil
			})
		},
	}

	addRemoteFlags(cmd, &opts.remoteOptions)
	cmd.Flags().StringVar(&opts.Epoch, "epoch", "", "window start, RFC 3339 (default now)")
	cmd.Flags().DurationVar(&opts.Window, "window", 0, "window length, 1m to 168h (default 24h)")

	return cmd
}

func writeConjunction(w io.Writer, r *api.ConjunctionResponse) {
	fmt.Fprintf(w, "%d / %d  %s .. %s  (%d samples)\n",
		r.Sat1, r.Sat2, r.Start.UTC().Format(time.RFC3339), r.End.UTC().Format(time.RFC3339), r.Samples)
	fmt.Fprintf(w, "closest  %s  %.3f %s  %.3f km/s\n",
		r.TimeOfClosestApproach.UTC().Format(time.RFC3339), r.MissDistanceKm, r.Units, r.RelativeSpeedKmS)
	for i, m := range r.LocalMinima {
		fmt.Fprintf(w, "  %d  %s  %.3f %s  %.3f km/s\n",
			i+1, m.Time.UTC().Format(time.RFC3339), m.DistanceKm, r.Units, m.RelativeSpeedKmS)
	}
}
