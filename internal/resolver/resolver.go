// Package resolver answers position queries for a pair of catalog objects:
// it validates identifiers, finds element sets, propagates them and
// assembles per-object results or structured per-object errors.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/star/ascas/internal/cache"
	"github.com/star/ascas/internal/catalog"
	"github.com/star/ascas/internal/logging"
	"github.com/star/ascas/internal/metrics"
	"github.com/star/ascas/internal/orbit"
	"github.com/star/ascas/internal/propagation"
	"github.com/star/ascas/internal/tle"
	"github.com/star/ascas/internal/transform"
)

const tracerName = "github.com/star/ascas/internal/resolver"

// MaxCatalogID is the largest accepted NORAD identifier (nine digits).
const MaxCatalogID = 999999999

// maxSpan bounds epoch + step*horizon. SGP4 is meaningless long before this.
const maxSpan = 200 * 365 * 24 * time.Hour

// Element sources reported in results.
const (
	SourceDataset = "dataset"
	SourceCache   = "cache"
	SourceFetch   = "fetch"
)

// Resolver is stateless per request apart from the read-only caches it
// consults. Safe for concurrent use.
type Resolver struct {
	store    *tle.Store
	elements *cache.ElementCache
	prop     *propagation.Propagator
	catalog  *catalog.Catalog
	cfg      Config
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// New creates a Resolver. elements and cat may be nil.
func New(store *tle.Store, elements *cache.ElementCache, prop *propagation.Propagator, cat *catalog.Catalog, cfg Config, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:    store,
		elements: elements,
		prop:     prop,
		catalog:  cat,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
}

// Config returns the effective defaults and limits.
func (r *Resolver) Config() Config {
	return r.cfg
}

// ParseID validates a catalog identifier: decimal digits only after
// trimming spaces, in [1, MaxCatalogID].
func ParseID(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("identifier is empty")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("identifier %q is not a decimal catalog number", s)
		}
	}
	id, err := strconv.Atoi(s)
	if err != nil || id < 1 || id > MaxCatalogID {
		return 0, fmt.Errorf("identifier %q outside [1, %d]", s, MaxCatalogID)
	}
	return id, nil
}

// Normalize fills defaults into q and checks it against the limits.
// The epoch is truncated to whole seconds in UTC.
func (r *Resolver) Normalize(q Query) (Query, error) {
	if q.Epoch.IsZero() {
		q.Epoch = r.now()
	}
	q.Epoch = q.Epoch.UTC().Truncate(time.Second)

	switch {
	case q.Step == 0:
		q.Step = r.cfg.DefaultStep
	case q.Step < r.cfg.MinStep:
		return q, InvalidQuery("step %s is below the minimum of %s", q.Step, r.cfg.MinStep)
	case q.Step%time.Second != 0:
		return q, InvalidQuery("step %s is not a whole number of seconds", q.Step)
	}

	switch {
	case q.Horizon == 0:
		q.Horizon = r.cfg.DefaultHorizon
	case q.Horizon < 0:
		return q, InvalidQuery("horizon must be positive, got %d", q.Horizon)
	case q.Horizon > r.cfg.MaxPositions:
		return q, InvalidQuery("horizon %d exceeds the limit of %d positions", q.Horizon, r.cfg.MaxPositions)
	}

	if q.Step > maxSpan/time.Duration(q.Horizon) {
		return q, InvalidQuery("step %s times horizon %d exceeds the propagation span limit", q.Step, q.Horizon)
	}

	frame, err := transform.ParseFrame(string(q.Frame))
	if err != nil {
		return q, &QueryError{Kind: KindInvalidInput, Err: err}
	}
	q.Frame = frame
	return q, nil
}

// Elements validates identifier and finds its element set: the current
// dataset first, then the element cache, then a per-object fetch.
func (r *Resolver) Elements(ctx context.Context, slot, identifier string) (tle.TLEEntry, string, *ObjectError) {
	id, err := ParseID(identifier)
	if err != nil {
		return tle.TLEEntry{}, "", &ObjectError{Slot: slot, Identifier: identifier, Kind: KindInvalidInput, Err: err}
	}
	fail := func(kind Kind, err error) (tle.TLEEntry, string, *ObjectError) {
		return tle.TLEEntry{}, "", &ObjectError{Slot: slot, Identifier: identifier, CatalogID: id, Kind: kind, Err: err}
	}

	if e, ok := r.store.Lookup(id); ok {
		return e, SourceDataset, nil
	}
	if r.elements == nil {
		return fail(KindNotFound, fmt.Errorf("no element set for NORAD %d", id))
	}
	if e, ok := r.elements.Get(id); ok {
		return e, SourceCache, nil
	}
	if !r.elements.FetchEnabled() {
		return fail(KindNotFound, fmt.Errorf("no element set for NORAD %d", id))
	}

	e, err := r.elements.Fetch(ctx, id)
	switch {
	case err == nil:
		return e, SourceFetch, nil
	case errors.Is(err, tle.ErrNoData):
		return fail(KindNotFound, err)
	default:
		return fail(KindUpstreamFailure, fmt.Errorf("fetching elements for NORAD %d: %w", id, err))
	}
}

// Resolve answers a two-object query. A malformed identifier in either
// slot fails the whole query with InvalidInput. Otherwise both objects are
// resolved concurrently. On success the result has both slots; when exactly one
// object fails the error is a *QueryError of kind PartialFailure whose
// Partial field carries the other slot; when both fail the kind is the more
// severe of the two.
func (r *Resolver) Resolve(ctx context.Context, q Query) (*Result, error) {
	ctx, span := r.tracer.Start(ctx, "resolver/resolve", trace.WithAttributes(
		attribute.String("sat1", q.First),
		attribute.String("sat2", q.Second),
	))
	defer span.End()
	logger := logging.With(ctx, r.logger)

	q, err := r.Normalize(q)
	if err != nil {
		metrics.IncResolve("failure")
		metrics.IncObjectFailure(string(KindInvalidInput))
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("epoch", q.Epoch.Format(time.RFC3339)),
		attribute.Int64("step_seconds", int64(q.Step/time.Second)),
		attribute.Int("horizon", q.Horizon),
		attribute.String("frame", string(q.Frame)),
	)

	slots, idents := []string{SlotFirst, SlotSecond}, []string{q.First, q.Second}
	if qe := CheckIdentifiers(slots, idents); qe != nil {
		metrics.IncResolve("failure")
		for _, oe := range qe.Errors {
			metrics.IncObjectFailure(string(oe.Kind))
			span.RecordError(oe, trace.WithAttributes(attribute.String("slot", oe.Slot)))
		}
		span.SetStatus(codes.Error, string(KindInvalidInput))
		return nil, qe
	}

	objs, errs := r.resolveSlots(ctx, q, slots, idents)
	res := &Result{Epoch: q.Epoch, Frame: q.Frame, Step: q.Step, Horizon: q.Horizon, First: objs[0], Second: objs[1]}

	var failed []*ObjectError
	for _, oe := range errs {
		if oe != nil {
			failed = append(failed, oe)
			metrics.IncObjectFailure(string(oe.Kind))
			span.RecordError(oe, trace.WithAttributes(attribute.String("slot", oe.Slot)))
		}
	}

	switch len(failed) {
	case 0:
		metrics.IncResolve("success")
		logger.Debug("query resolved",
			"component", "resolver",
			"sat1", res.First.CatalogID,
			"sat2", res.Second.CatalogID,
			"horizon", q.Horizon,
		)
		return res, nil
	case 1:
		metrics.IncResolve("partial")
		span.SetStatus(codes.Error, "partial failure")
		logger.Info("query partially resolved",
			"component", "resolver",
			"slot", failed[0].Slot,
			"identifier", failed[0].Identifier,
			"kind", failed[0].Kind,
			"error", failed[0].Err,
		)
		return nil, &QueryError{Kind: KindPartialFailure, Errors: failed, Partial: res}
	default:
		kind := worst(failed)
		metrics.IncResolve("failure")
		span.SetStatus(codes.Error, string(kind))
		logger.Info("query failed",
			"component", "resolver",
			"kind", kind,
			"sat1_error", failed[0].Err,
			"sat2_error", failed[1].Err,
		)
		return nil, &QueryError{Kind: kind, Errors: failed}
	}
}

// ResolveObject answers a single-object query using q's epoch, step,
// horizon and frame; q.Second is ignored. The result has only First set.
func (r *Resolver) ResolveObject(ctx context.Context, q Query) (*Result, error) {
	ctx, span := r.tracer.Start(ctx, "resolver/resolve_object", trace.WithAttributes(
		attribute.String("sat", q.First),
	))
	defer span.End()

	q, err := r.Normalize(q)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	objs, errs := r.resolveSlots(ctx, q, []string{SlotFirst}, []string{q.First})
	if oe := errs[0]; oe != nil {
		metrics.IncObjectFailure(string(oe.Kind))
		span.RecordError(oe)
		span.SetStatus(codes.Error, string(oe.Kind))
		return nil, &QueryError{Kind: oe.Kind, Errors: []*ObjectError{oe}}
	}
	return &Result{Epoch: q.Epoch, Frame: q.Frame, Step: q.Step, Horizon: q.Horizon, First: objs[0]}, nil
}

// CheckIdentifiers rejects a query in which any identifier is not a
// catalog number. The returned error is of kind InvalidInput and names every
// malformed slot; nil means all identifiers parse.
func CheckIdentifiers(slots, idents []string) *QueryError {
	var bad []*ObjectError
	for i, ident := range idents {
		if _, err := ParseID(ident); err != nil {
			bad = append(bad, &ObjectError{Slot: slots[i], Identifier: ident, Kind: KindInvalidInput, Err: err})
		}
	}
	if len(bad) == 0 {
		return nil
	}
	return &QueryError{Kind: KindInvalidInput, Errors: bad}
}

// resolveSlots finds elements for every slot concurrently, then propagates
// the ones found on the worker pool. Each slot yields a result or an error.
func (r *Resolver) resolveSlots(ctx context.Context, q Query, slots, idents []string) ([]*ObjectResult, []*ObjectError) {
	n := len(slots)
	entries := make([]tle.TLEEntry, n)
	sources := make([]string, n)
	errs := make([]*ObjectError, n)

	var g errgroup.Group
	for i := range slots {
		g.Go(func() error {
			entries[i], sources[i], errs[i] = r.Elements(ctx, slots[i], idents[i])
			return nil
		})
	}
	_ = g.Wait()

	var jobs []propagation.Job
	var jobSlot []int
	for i := range slots {
		if errs[i] != nil {
			continue
		}
		jobs = append(jobs, propagation.Job{Entry: entries[i], Epoch: q.Epoch, Step: q.Step, Horizon: q.Horizon})
		jobSlot = append(jobSlot, i)
	}

	out := make([]*ObjectResult, n)
	for j, jr := range r.prop.Trajectories(ctx, jobs) {
		i := jobSlot[j]
		fail := func(kind Kind, err error) {
			errs[i] = &ObjectError{Slot: slots[i], Identifier: idents[i], CatalogID: entries[i].NORADID, Kind: kind, Err: err}
		}

		if jr.Err != nil {
			if ctx.Err() != nil {
				fail(KindUpstreamFailure, fmt.Errorf("request abandoned: %w", jr.Err))
			} else {
				fail(KindPropagationFailed, jr.Err)
			}
			continue
		}

		obj, err := r.assemble(jr.Trajectory, sources[i], q.Frame)
		if err != nil {
			fail(KindPropagationFailed, err)
			continue
		}
		out[i] = obj
	}
	return out, errs
}

// assemble converts a trajectory into the reported frame and attaches the
// orbit geometry derived from the element set.
func (r *Resolver) assemble(traj *propagation.Trajectory, source string, frame transform.Frame) (*ObjectResult, error) {
	entry := traj.Entry
	el, err := tle.ParseElements(entry)
	if err != nil {
		return nil, err
	}
	ellipse, err := orbit.FromElements(el)
	if err != nil {
		return nil, fmt.Errorf("NORAD %d: %w", entry.NORADID, err)
	}

	name := entry.Name
	if r.catalog != nil {
		if n := r.catalog.NameOf(entry.NORADID); n != "" {
			name = n
		}
	}

	future := make([]TrajectorySample, len(traj.Future))
	for i, s := range traj.Future {
		future[i] = toSample(s, frame)
	}

	currentECEF := transform.TEMEToECEF(traj.Current.State, traj.Current.Time)

	return &ObjectResult{
		CatalogID:       entry.NORADID,
		Name:            name,
		ElementEpoch:    entry.Epoch.UTC(),
		ElementSource:   source,
		Current:         toSample(traj.Current, frame),
		Subpoint:        transform.ECEFToGeodetic(currentECEF),
		Future:          future,
		OrbitalEquation: ellipse.Equation(),
		Orbit:           ellipse,
		Alternatives:    orbit.Variations(ellipse),
	}, nil
}

func toSample(s propagation.Sample, frame transform.Frame) TrajectorySample {
	p := Position{X: s.State.X, Y: s.State.Y, Z: s.State.Z}
	if frame == transform.FrameECEF {
		e := transform.TEMEToECEF(s.State, s.Time)
		p = Position{X: e.X, Y: e.Y, Z: e.Z}
	}
	return TrajectorySample{Offset: s.Offset, Time: s.Time.UTC(), Position: p}
}
