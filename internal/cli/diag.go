package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/star/ascas/internal/logging"
	"github.com/star/ascas/internal/orbit"
	"github.com/star/ascas/internal/propagation"
	"github.com/star/ascas/internal/resolver"
	"github.com/star/ascas/internal/tle"
	"github.com/star/ascas/internal/transform"
)

type diagOptions struct {
	TLEFile string
	Epoch   string
	Step    time.Duration
	Horizon int
	Workers int
}

// DiagEntry is the check result of one element set.
type DiagEntry struct {
	CatalogID int       `json:"catalogId"`
	Name      string    `json:"name"`
	Epoch     time.Time `json:"elementEpoch"`
	Equation  string    `json:"orbitalEquation,omitempty"`
	PeriodMin float64   `json:"periodMinutes,omitempty"`
	RadiusKm  float64   `json:"radiusKm,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// DiagReport summarizes a diag run.
type DiagReport struct {
	File    string      `json:"file"`
	Epoch   time.Time   `json:"epoch"`
	Step    string      `json:"step"`
	Horizon int         `json:"horizon"`
	Parsed  int         `json:"parsed"`
	Failed  int         `json:"failed"`
	Entries []DiagEntry `json:"entries"`
}

// NewDiagCommand creates the diag command.
func NewDiagCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &diagOptions{}

	cmd := &cobra.Command{
		Use:   "diag --tle-file <path>",
		Short: "Check that every element set in a TLE file propagates",
		Long: `Parse a TLE file, derive each object's orbit and propagate it over the
requested horizon. Exits non-zero when any element set fails.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiag(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().StringVar(&opts.TLEFile, "tle-file", "", "TLE file in 2- or 3-line format (required)")
	cmd.Flags().StringVar(&opts.Epoch, "epoch", "", "propagation start, RFC 3339 (default now)")
	cmd.Flags().DurationVar(&opts.Step, "step", resolver.DefaultStep, "interval between samples")
	cmd.Flags().IntVar(&opts.Horizon, "horizon", resolver.DefaultHorizon, "number of future samples")
	cmd.Flags().IntVar(&opts.Workers, "workers", runtime.NumCPU(), "propagation workers")
	_ = cmd.MarkFlagRequired("tle-file")

	return cmd
}

func runDiag(cmd *cobra.Command, rootOpts *RootOptions, opts *diagOptions) error {
	formatter := newFormatter(rootOpts, cmd)

	epoch, err := parseEpochFlag(opts.Epoch)
	if err != nil {
		return err
	}
	if epoch.IsZero() {
		epoch = time.Now().UTC().Truncate(time.Second)
	}
	if opts.Step < time.Second || opts.Horizon < 1 {
		return NewExitError(ExitCommandError, "--step must be at least 1s and --horizon at least 1")
	}

	logger := logging.Discard()
	if rootOpts.Verbose {
		logger = logging.New(logging.Config{Level: "debug", Format: "text", Output: formatter.GetErrWriter()})
	}

	f, err := os.Open(opts.TLEFile)
	if err != nil {
		_ = formatter.Error("read", err.Error(), nil)
		return WrapExitError(ExitCommandError, "reading TLE file", err)
	}
	defer f.Close()

	entries, err := tle.Parse(f, logger)
	if err != nil {
		_ = formatter.Error("parse", err.Error(), nil)
		return WrapExitError(ExitCommandError, "parsing TLE file", err)
	}
	if len(entries) == 0 {
		_ = formatter.Error("parse", "no valid element sets in "+opts.TLEFile, nil)
		return NewExitError(ExitFailure, "no valid element sets")
	}
	formatter.VerboseLog("loaded %d element sets from %s", len(entries), opts.TLEFile)

	report := diagnose(cmd.Context(), entries, epoch, opts, logger)
	report.File = opts.TLEFile

	if err := formatter.Success(report, func(w io.Writer) error {
		writeDiag(w, report)
		return nil
	}); err != nil {
		return err
	}
	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d element sets failed", report.Failed, report.Parsed))
	}
	return nil
}

// diagnose propagates every entry on a worker pool. Entries keep file order.
func diagnose(ctx context.Context, entries []tle.TLEEntry, epoch time.Time, opts *diagOptions, logger *slog.Logger) DiagReport {
	ds := tle.NewDataset("file", time.Now(), entries)
	store := tle.NewStore()
	store.Set(ds)
	prop := propagation.NewPropagator(store, propagation.PropConfig{
		Workers:      opts.Workers,
		Step:         opts.Step,
		Horizon:      opts.Horizon,
		MaxPositions: opts.Horizon,
	}, logger)

	jobs := make([]propagation.Job, len(entries))
	for i, e := range entries {
		jobs[i] = propagation.Job{Entry: e, Epoch: epoch, Step: opts.Step, Horizon: opts.Horizon}
	}
	results := prop.Trajectories(ctx, jobs)

	report := DiagReport{
		Epoch:   epoch,
		Step:    opts.Step.String(),
		Horizon: opts.Horizon,
		Parsed:  len(entries),
		Entries: make([]DiagEntry, len(entries)),
	}
	for i, e := range entries {
		d := DiagEntry{CatalogID: e.NORADID, Name: e.Name, Epoch: e.Epoch}

		if el, err := tle.ParseElements(e); err != nil {
			d.Error = err.Error()
		} else if ell, err := orbit.FromElements(el); err != nil {
			d.Error = err.Error()
		} else {
			d.Equation = ell.Equation()
			d.PeriodMin = ell.PeriodMinutes
		}

		if r := results[i]; r.Err != nil && d.Error == "" {
			d.Error = r.Err.Error()
		} else if r.Trajectory != nil {
			d.RadiusKm = transform.State(r.Trajectory.Current.State).Radius()
		}

		if d.Error != "" {
			report.Failed++
		}
		report.Entries[i] = d
	}
	return report
}

func writeDiag(w io.Writer, r DiagReport) {
	fmt.Fprintf(w, "%s: %d element sets, epoch %s, step %s, horizon %d\n",
		r.File, r.Parsed, r.Epoch.UTC().Format(time.RFC3339), r.Step, r.Horizon)
	for _, e := range r.Entries {
		if e.Error != "" {
			fmt.Fprintf(w, "  FAIL %8d  %-24s %s\n", e.CatalogID, e.Name, e.Error)
			continue
		}
		fmt.Fprintf(w, "  ok   %8d  %-24s r=%.1f km  T=%.1f min  %s\n",
			e.CatalogID, e.Name, e.RadiusKm, e.PeriodMin, e.Equation)
	}
	fmt.Fprintf(w, "%d ok, %d failed\n", r.Parsed-r.Failed, r.Failed)
}
