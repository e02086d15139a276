package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/ascas/internal/api"
	"github.com/star/ascas/internal/client"
	"github.com/star/ascas/internal/resolver"
	"github.com/star/ascas/internal/session"
)

type queryOptions struct {
	remoteOptions
	Epoch   string
	Step    time.Duration
	Horizon int
	Frame   string
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query <sat1-id> <sat2-id>",
		Short: "Resolve the positions of two objects",
		Long: `Ask a running server for the current and future positions of two objects.

Identifiers are NORAD catalog numbers. Unset parameters take the server's
defaults: the current time, a one-year step and ten future positions.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, rootOpts, opts, args[0], args[1])
		},
	}

	addRemoteFlags(cmd, &opts.remoteOptions)
	cmd.Flags().StringVar(&opts.Epoch, "epoch", "", "query epoch, RFC 3339 (default now)")
	cmd.Flags().DurationVar(&opts.Step, "step", 0, "interval between future positions, whole seconds")
	cmd.Flags().IntVar(&opts.Horizon, "horizon", 0, "number of future positions")
	cmd.Flags().StringVar(&opts.Frame, "frame", "", "reference frame (teme|ecef)")

	return cmd
}

func runQuery(cmd *cobra.Command, rootOpts *RootOptions, opts *queryOptions, sat1, sat2 string) error {
	formatter := newFormatter(rootOpts, cmd)

	epoch, err := parseEpochFlag(opts.Epoch)
	if err != nil {
		return err
	}
	req := api.PositionsRequest{
		StepSeconds: int64(opts.Step / time.Second),
		Horizon:     opts.Horizon,
		Frame:       opts.Frame,
	}
	if !epoch.IsZero() {
		req.Epoch = epoch.Format(time.RFC3339)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()

	s := session.New(session.SingleOutstanding)
	s.SetForm(sat1, sat2)
	snap, err := s.Query(ctx, opts.client(), req)
	formatter.VerboseLog("request %s finished in state %s", snap.RequestID, snap.State)
	if err != nil {
		return queryFailed(formatter, err)
	}

	return formatter.Success(snap.Result, func(w io.Writer) error {
		writePositions(w, snap.Result)
		return nil
	})
}

// queryFailed reports err and maps it to an exit code. A partial failure
// still prints the object that resolved.
func queryFailed(f *OutputFormatter, err error) error {
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		_ = f.Error(errorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "query failed", err)
	}

	body := apiErr.Body
	_ = f.Error(errorCode(err), apiErr.Error(), body)
	if f.Format != "json" {
		w := f.Writer
		for _, slot := range []struct {
			name string
			err  *api.ObjectErrorBody
			obj  *resolver.ObjectResult
		}{
			{resolver.SlotFirst, body.Sat1Error, body.Sat1},
			{resolver.SlotSecond, body.Sat2Error, body.Sat2},
		} {
			switch {
			case slot.err != nil:
				fmt.Fprintf(w, "%s  %q: %s (%s)\n", slot.name, slot.err.Identifier, slot.err.Message, slot.err.Kind)
			case slot.obj != nil:
				writeObject(w, slot.name, slot.obj)
			}
		}
	}
	return WrapExitError(ExitFailure, "query failed", err)
}

func writePositions(w io.Writer, resp *api.PositionsResponse) {
	fmt.Fprintf(w, "epoch %s  frame %s  step %ds  horizon %d  units %s\n",
		resp.Epoch.UTC().Format(time.RFC3339), resp.Frame, resp.StepSeconds, resp.Horizon, resp.Units)
	fmt.Fprintf(w, "request %s\n\n", resp.RequestID)
	writeObject(w, resolver.SlotFirst, resp.Sat1)
	fmt.Fprintln(w)
	writeObject(w, resolver.SlotSecond, resp.Sat2)
}

func writeObject(w io.Writer, slot string, o *resolver.ObjectResult) {
	if o == nil {
		return
	}
	fmt.Fprintf(w, "%s  %d  %s\n", slot, o.CatalogID, o.Name)
	fmt.Fprintf(w, "  elements  %s (%s)\n", o.ElementEpoch.UTC().Format(time.RFC3339), o.ElementSource)
	fmt.Fprintf(w, "  orbit     %s\n", o.OrbitalEquation)
	fmt.Fprintf(w, "  subpoint  lat %.3f  lon %.3f  alt %.1f km\n", o.Subpoint.LatDeg, o.Subpoint.LonDeg, o.Subpoint.AltKm)
	writeSample(w, o.Current)
	for _, s := range o.Future {
		writeSample(w, s)
	}
}

func writeSample(w io.Writer, s resolver.TrajectorySample) {
	fmt.Fprintf(w, "  %4d  %s  %12.3f %12.3f %12.3f\n",
		s.Offset, s.Time.UTC().Format(time.RFC3339), s.Position.X, s.Position.Y, s.Position.Z)
}
