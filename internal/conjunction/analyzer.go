package conjunction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/star/ascas/internal/logging"
	"github.com/star/ascas/internal/propagation"
	"github.com/star/ascas/internal/resolver"
	"github.com/star/ascas/internal/tle"
)

const (
	// DefaultWindow is the search window when none is given.
	DefaultWindow = 24 * time.Hour
	// MaxWindow bounds the search window.
	MaxWindow = 7 * 24 * time.Hour
)

// Result is a closest-approach answer for a pair of objects.
type Result struct {
	First  int `json:"sat1"`
	Second int `json:"sat2"`
	*Scan
}

// Analyzer runs closest-approach searches using the resolver's element
// lookup and error taxonomy.
type Analyzer struct {
	resolver *resolver.Resolver
	prop     *propagation.Propagator
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(r *resolver.Resolver, prop *propagation.Propagator, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		resolver: r,
		prop:     prop,
		logger:   logger,
		tracer:   otel.Tracer("github.com/star/ascas/internal/conjunction"),
		now:      time.Now,
	}
}

// Analyze searches [start, start+window] for the closest approach of the
// two identified objects. A zero start means now; a zero window means
// DefaultWindow. Failures are *resolver.QueryError values.
func (a *Analyzer) Analyze(ctx context.Context, first, second string, start time.Time, window time.Duration) (*Result, error) {
	ctx, span := a.tracer.Start(ctx, "conjunction/analyze", trace.WithAttributes(
		attribute.String("sat1", first),
		attribute.String("sat2", second),
	))
	defer span.End()

	if start.IsZero() {
		start = a.now()
	}
	start = start.UTC().Truncate(time.Second)
	if window == 0 {
		window = DefaultWindow
	}
	if window < coarseStep || window > MaxWindow {
		err := resolver.InvalidQuery("window %s outside [%s, %s]", window, coarseStep, MaxWindow)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	slots := [2]string{resolver.SlotFirst, resolver.SlotSecond}
	idents := [2]string{first, second}
	if qe := resolver.CheckIdentifiers(slots[:], idents[:]); qe != nil {
		span.SetStatus(codes.Error, string(qe.Kind))
		return nil, qe
	}

	var entries [2]tle.TLEEntry
	var errs [2]*resolver.ObjectError

	var g errgroup.Group
	for i := range slots {
		g.Go(func() error {
			entries[i], _, errs[i] = a.resolver.Elements(ctx, slots[i], idents[i])
			return nil
		})
	}
	_ = g.Wait()

	var failed []*resolver.ObjectError
	for _, oe := range errs {
		if oe != nil {
			failed = append(failed, oe)
		}
	}
	if len(failed) > 0 {
		qe := resolver.Failed(failed...)
		span.SetStatus(codes.Error, string(qe.Kind))
		return nil, qe
	}

	models := make([]*propagation.SGP4Propagator, 2)
	for i, e := range entries {
		m, err := a.prop.Prepare(e)
		if err != nil {
			qe := resolver.Failed(&resolver.ObjectError{
				Slot: slots[i], Identifier: idents[i], CatalogID: e.NORADID,
				Kind: resolver.KindPropagationFailed, Err: err,
			})
			span.SetStatus(codes.Error, string(qe.Kind))
			return nil, qe
		}
		models[i] = m
	}

	s, err := scan(ctx, pairSampler(models[0], models[1]), start, window)
	if err != nil {
		kind := resolver.KindPropagationFailed
		if ctx.Err() != nil {
			kind = resolver.KindUpstreamFailure
			err = fmt.Errorf("request abandoned: %w", err)
		}
		qe := resolver.Failed(&resolver.ObjectError{
			Slot: "pair", Identifier: first + "/" + second,
			Kind: kind, Err: err,
		})
		span.SetStatus(codes.Error, string(qe.Kind))
		return nil, qe
	}

	span.SetAttributes(
		attribute.Float64("miss_distance_km", s.Closest.DistanceKm),
		attribute.Int("samples", s.Samples),
	)
	logging.With(ctx, a.logger).Debug("closest approach found",
		"component", "conjunction",
		"sat1", entries[0].NORADID,
		"sat2", entries[1].NORADID,
		"tca", s.Closest.Time.Format(time.RFC3339),
		"miss_distance_km", s.Closest.DistanceKm,
	)

	return &Result{First: entries[0].NORADID, Second: entries[1].NORADID, Scan: s}, nil
}
