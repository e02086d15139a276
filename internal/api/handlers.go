package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/star/ascas/internal/httputil"
	"github.com/star/ascas/internal/logging"
	"github.com/star/ascas/internal/resolver"
	"github.com/star/ascas/internal/tle"
	"github.com/star/ascas/internal/transform"
)

const maxRequestBytes = 64 << 10

// handlePositions answers POST /api/v1/positions.
func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	requestID := logging.RequestIDFromContext(r.Context())

	var req PositionsRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&req); err != nil {
		s.writeQueryError(w, r, resolver.InvalidQuery("invalid request body: %v", err))
		return
	}

	epoch, err := parseEpoch(req.Epoch)
	if err != nil {
		s.writeQueryError(w, r, resolver.InvalidQuery("%v", err))
		return
	}
	if req.StepSeconds < 0 {
		s.writeQueryError(w, r, resolver.InvalidQuery("stepSeconds must be positive, got %d", req.StepSeconds))
		return
	}

	res, err := s.deps.Resolver.Resolve(r.Context(), resolver.Query{
		First:   string(req.Sat1ID),
		Second:  string(req.Sat2ID),
		Epoch:   epoch,
		Step:    time.Duration(req.StepSeconds) * time.Second,
		Horizon: req.Horizon,
		Frame:   transform.Frame(req.Frame),
	})
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, PositionsResponse{
		RequestID:   requestID,
		Epoch:       res.Epoch,
		Frame:       res.Frame,
		Units:       Units,
		StepSeconds: int64(res.Step / time.Second),
		Horizon:     res.Horizon,
		Sat1:        res.First,
		Sat2:        res.Second,
	})
}

// handlePropagate answers GET /api/v1/propagate/{norad_id}?step=&horizon=&epoch=&frame=.
// step is in seconds. Requests above the positions budget are rejected
// before any propagation runs.
func (s *Server) handlePropagate(w http.ResponseWriter, r *http.Request) {
	requestID := logging.RequestIDFromContext(r.Context())
	q := r.URL.Query()
	maxPositions := s.deps.Resolver.Config().MaxPositions

	horizon, err := intParam(q.Get("horizon"))
	if err != nil {
		s.writeQueryError(w, r, resolver.InvalidQuery("horizon: %v", err))
		return
	}
	if horizon > maxPositions {
		httputil.WriteJSON(w, http.StatusBadRequest, map[string]any{
			"requestId":     requestID,
			"error":         fmt.Sprintf("horizon %d exceeds the positions budget", horizon),
			"kind":          resolver.KindInvalidInput,
			"max_positions": maxPositions,
		})
		return
	}

	step, err := intParam(q.Get("step"))
	if err != nil || step < 0 {
		s.writeQueryError(w, r, resolver.InvalidQuery("step must be a non-negative number of seconds"))
		return
	}
	epoch, err := parseEpoch(q.Get("epoch"))
	if err != nil {
		s.writeQueryError(w, r, resolver.InvalidQuery("%v", err))
		return
	}

	res, err := s.deps.Resolver.ResolveObject(r.Context(), resolver.Query{
		First:   r.PathValue("norad_id"),
		Epoch:   epoch,
		Step:    time.Duration(step) * time.Second,
		Horizon: horizon,
		Frame:   transform.Frame(q.Get("frame")),
	})
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ObjectResponse{
		RequestID:   requestID,
		Epoch:       res.Epoch,
		Frame:       res.Frame,
		Units:       Units,
		StepSeconds: int64(res.Step / time.Second),
		Horizon:     res.Horizon,
		Object:      res.First,
	})
}

// handleConjunction answers GET /api/v1/conjunction?sat1=&sat2=&epoch=&window=.
// window is a Go duration ("36h") or a number of seconds.
func (s *Server) handleConjunction(w http.ResponseWriter, r *http.Request) {
	if s.deps.Conjunction == nil {
		httputil.WriteError(w, http.StatusNotImplemented, "closest approach search not configured")
		return
	}
	q := r.URL.Query()

	epoch, err := parseEpoch(q.Get("epoch"))
	if err != nil {
		s.writeQueryError(w, r, resolver.InvalidQuery("%v", err))
		return
	}
	window, err := parseWindow(q.Get("window"))
	if err != nil {
		s.writeQueryError(w, r, resolver.InvalidQuery("window: %v", err))
		return
	}

	res, err := s.deps.Conjunction.Analyze(r.Context(), q.Get("sat1"), q.Get("sat2"), epoch, window)
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}

	minima := make([]Minimum, len(res.Minima))
	for i, m := range res.Minima {
		minima[i] = Minimum(m)
	}
	httputil.WriteJSON(w, http.StatusOK, ConjunctionResponse{
		RequestID:             logging.RequestIDFromContext(r.Context()),
		Sat1:                  res.First,
		Sat2:                  res.Second,
		Start:                 res.Start,
		End:                   res.End,
		TimeOfClosestApproach: res.Closest.Time,
		MissDistanceKm:        res.Closest.DistanceKm,
		RelativeSpeedKmS:      res.Closest.RelativeSpeedKmS,
		Samples:               res.Samples,
		Units:                 Units,
		LocalMinima:           minima,
	})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalog == nil {
		httputil.WriteJSON(w, http.StatusOK, []any{})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.deps.Catalog.Sorted())
}

type tleMetadata struct {
	Source     string    `json:"source"`
	FetchedAt  time.Time `json:"fetched_at"`
	EpochMin   time.Time `json:"epoch_min"`
	EpochMax   time.Time `json:"epoch_max"`
	Count      int       `json:"count"`
	AgeSeconds float64   `json:"age_seconds"`
}

func metadataOf(ds *tle.TLEDataset) tleMetadata {
	return tleMetadata{
		Source:     ds.Source,
		FetchedAt:  ds.FetchedAt.UTC(),
		EpochMin:   ds.EpochRange.Min,
		EpochMax:   ds.EpochRange.Max,
		Count:      ds.Len(),
		AgeSeconds: time.Since(ds.FetchedAt).Seconds(),
	}
}

func (s *Server) handleTLEMetadata(w http.ResponseWriter, r *http.Request) {
	ds := s.deps.Store.Get()
	if ds == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "no TLE data loaded")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, metadataOf(ds))
}

func (s *Server) handleTLEFetch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Refresher == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "TLE fetch is disabled")
		return
	}

	ds, err := s.deps.Refresher.Refresh(r.Context())
	switch {
	case errors.Is(err, tle.ErrRefreshInProgress):
		httputil.WriteError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		logging.With(r.Context(), s.logger).Warn("TLE fetch failed", "component", "api", "error", err)
		httputil.WriteError(w, http.StatusBadGateway, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, metadataOf(ds))
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Elements == nil {
		httputil.WriteError(w, http.StatusNotFound, "element cache disabled")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.deps.Elements.Stats())
}

// writeQueryError renders err with the status of its kind. Errors that are
// not *resolver.QueryError are internal.
func (s *Server) writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := logging.RequestIDFromContext(r.Context())

	var qe *resolver.QueryError
	if !errors.As(err, &qe) {
		logging.With(r.Context(), s.logger).Error("unexpected query error", "component", "api", "error", err)
		httputil.WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
			RequestID: requestID,
			Error:     "internal error",
		})
		return
	}

	status := StatusFor(qe.Kind)
	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	logging.With(r.Context(), s.logger).Log(r.Context(), level, "query failed",
		"component", "api",
		"kind", string(qe.Kind),
		"error", qe.Error(),
	)

	httputil.WriteJSON(w, status, errorResponse(requestID, qe))
}

func parseEpoch(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("epoch %q is not RFC 3339", s)
	}
	return t, nil
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func parseWindow(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%q is neither seconds nor a duration", s)
	}
	return d, nil
}
