package resolver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/star/ascas/internal/cache"
	"github.com/star/ascas/internal/catalog"
	"github.com/star/ascas/internal/propagation"
	"github.com/star/ascas/internal/testutil"
	"github.com/star/ascas/internal/tle"
	"github.com/star/ascas/internal/transform"
)

var queryEpoch = testutil.Epoch.Add(48 * time.Hour)

func newResolver(t *testing.T, store *tle.Store, elements *cache.ElementCache) *Resolver {
	t.Helper()
	prop := propagation.NewPropagator(store, propagation.PropConfig{Workers: 2}, testutil.Logger())
	return New(store, elements, prop, catalog.Default(), Config{}, testutil.Logger())
}

// objectServer serves single-object lookups the way CelesTrak does: the
// element set when known, a plain-text notice otherwise.
func objectServer(t *testing.T, known ...int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.Atoi(r.URL.Query().Get("CATNR"))
		for _, k := range known {
			if k == id {
				w.Write([]byte(testutil.Text(id)))
				return
			}
		}
		w.Write([]byte("No GP data found\n"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fetchingCache(t *testing.T, srv *httptest.Server, store *tle.Store) *cache.ElementCache {
	t.Helper()
	f := tle.NewFetcher(srv.URL, testutil.Logger()).WithObjectURL(srv.URL + "/?CATNR=%d")
	return cache.NewElementCache(cache.Config{TTL: time.Hour}, f, store, testutil.Logger())
}

func TestResolveThreeSamples(t *testing.T) {
	r := newResolver(t, testutil.Store(), nil)

	res, err := r.Resolve(context.Background(), Query{
		First: "25544", Second: "27663", Epoch: queryEpoch, Step: time.Minute, Horizon: 3,
	})
	require.NoError(t, err)

	for _, obj := range []*ObjectResult{res.First, res.Second} {
		require.NotNil(t, obj)
		require.Len(t, obj.Future, 3)
		for i, s := range obj.Future {
			assert.Equal(t, i+1, s.Offset)
			assert.True(t, s.Time.Equal(queryEpoch.Add(time.Duration(i+1)*time.Minute)))
		}
		assert.Equal(t, 0, obj.Current.Offset)
		assert.True(t, obj.Current.Time.Equal(queryEpoch))
		assert.Equal(t, SourceDataset, obj.ElementSource)
		assert.True(t, strings.HasPrefix(obj.OrbitalEquation, "(x / "), obj.OrbitalEquation)
	}

	assert.Equal(t, 25544, res.First.CatalogID)
	assert.Equal(t, "ISS (International Space Station)", res.First.Name)
	assert.Equal(t, 27663, res.Second.CatalogID)
	assert.Equal(t, "(x / 6794.86)^2 + (y / 6794.86)^2 = 1", res.First.OrbitalEquation)
	assert.Equal(t, transform.FrameTEME, res.Frame)
}

func TestResolveDefaultsYearly(t *testing.T) {
	r := newResolver(t, testutil.Store(), nil)

	res, err := r.Resolve(context.Background(), Query{First: "42432", Second: "27663", Epoch: testutil.Epoch})
	require.NoError(t, err)

	assert.Equal(t, DefaultStep, res.Step)
	assert.Equal(t, DefaultHorizon, res.Horizon)
	require.Len(t, res.First.Future, DefaultHorizon)
	last := res.First.Future[9]
	assert.Equal(t, 10, last.Offset)
	assert.True(t, last.Time.Equal(testutil.Epoch.Add(10*DefaultStep)), last.Time)

	geoRadius := transform.State{X: last.Position.X, Y: last.Position.Y, Z: last.Position.Z}.Radius()
	assert.InDelta(t, 42164, geoRadius, 100)
	assert.Len(t, res.First.Alternatives, 4)
}

func TestResolveDeterministic(t *testing.T) {
	r := newResolver(t, testutil.Store(), nil)
	q := Query{First: "25544", Second: "22675", Epoch: queryEpoch, Step: time.Hour, Horizon: 5}

	a, err := r.Resolve(context.Background(), q)
	require.NoError(t, err)
	b, err := r.Resolve(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestResolveDuplicateIdentifiers(t *testing.T) {
	r := newResolver(t, testutil.Store(), nil)

	res, err := r.Resolve(context.Background(), Query{First: "25544", Second: " 25544 ", Epoch: queryEpoch, Horizon: 2})
	require.NoError(t, err)
	assert.Equal(t, res.First, res.Second)
}

func TestResolveDefaultEpochIsNowTruncated(t *testing.T) {
	r := newResolver(t, testutil.Store(), nil)
	r.now = func() time.Time { return time.Date(2024, 4, 12, 8, 30, 15, 987654321, time.FixedZone("X", 3600)) }

	res, err := r.Resolve(context.Background(), Query{First: "25544", Second: "27663", Horizon: 1})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 4, 12, 7, 30, 15, 0, time.UTC), res.Epoch)
	assert.Equal(t, res.Epoch, res.First.Current.Time)
}

func TestResolveECEFFrame(t *testing.T) {
	r := newResolver(t, testutil.Store(), nil)
	q := Query{First: "25544", Second: "27663", Epoch: queryEpoch, Step: time.Minute, Horizon: 2}

	teme, err := r.Resolve(context.Background(), q)
	require.NoError(t, err)
	q.Frame = "ecef"
	ecef, err := r.Resolve(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, transform.FrameECEF, ecef.Frame)
	a := teme.First.Future[0].Position
	b := ecef.First.Future[0].Position
	assert.NotEqual(t, a, b)
	assert.InDelta(t,
		transform.State{X: a.X, Y: a.Y, Z: a.Z}.Radius(),
		transform.State{X: b.X, Y: b.Y, Z: b.Z}.Radius(), 1e-6)
	assert.Equal(t, teme.First.Subpoint, ecef.First.Subpoint)
	assert.InDelta(t, 400, teme.First.Subpoint.AltKm, 60)
}

// TestResolvePartialUnknown is the canonical partial failure: the unknown
// object is named and the known one is kept.
func TestResolvePartialUnknown(t *testing.T) {
	store := testutil.Store()
	r := newResolver(t, store, fetchingCache(t, objectServer(t), store))

	res, err := r.Resolve(context.Background(), Query{First: "99999999", Second: "25544", Epoch: queryEpoch, Horizon: 3, Step: time.Minute})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), "99999999")
	assert.True(t, errors.Is(err, ErrPartialFailure))
	assert.True(t, errors.Is(err, ErrNotFound))

	var qe *QueryError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, KindPartialFailure, qe.Kind)
	require.Len(t, qe.Errors, 1)

	oe := qe.ForSlot(SlotFirst)
	require.NotNil(t, oe)
	assert.Equal(t, KindNotFound, oe.Kind)
	assert.Equal(t, 99999999, oe.CatalogID)
	assert.Nil(t, qe.ForSlot(SlotSecond))

	require.NotNil(t, qe.Partial)
	assert.Nil(t, qe.Partial.First)
	require.NotNil(t, qe.Partial.Second)
	assert.Equal(t, 25544, qe.Partial.Second.CatalogID)
	assert.Len(t, qe.Partial.Second.Future, 3)
}

func TestResolveNotFoundWithoutFetcher(t *testing.T) {
	r := newResolver(t, testutil.Store(), nil)

	_, err := r.Resolve(context.Background(), Query{First: "25544", Second: "99999999", Epoch: queryEpoch, Horizon: 1})
	var qe *QueryError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, KindPartialFailure, qe.Kind)
	assert.Equal(t, KindNotFound, qe.ForSlot(SlotSecond).Kind)
}

func TestResolveInvalidIdentifiers(t *testing.T) {
	r := newResolver(t, testutil.Store(), nil)

	tests := []struct {
		name          string
		first, second string
		wantKind      Kind
		badSlots      []string
	}{
		{"letters", "ISS", "25544", KindInvalidInput, []string{SlotFirst}},
		{"empty", "25544", "", KindInvalidInput, []string{SlotSecond}},
		{"negative", "-5", "25544", KindInvalidInput, []string{SlotFirst}},
		{"zero", "0", "25544", KindInvalidInput, []string{SlotFirst}},
		{"too long", "1000000000", "25544", KindInvalidInput, []string{SlotFirst}},
		{"decimal", "25544.0", "27663", KindInvalidInput, []string{SlotFirst}},
		{"both", "abc", "x1", KindInvalidInput, []string{SlotFirst, SlotSecond}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), Query{First: tt.first, Second: tt.second, Epoch: queryEpoch, Horizon: 1})
			var qe *QueryError
			require.True(t, errors.As(err, &qe), "err = %v", err)
			assert.Equal(t, tt.wantKind, qe.Kind)
			for _, slot := range tt.badSlots {
				oe := qe.ForSlot(slot)
				require.NotNil(t, oe, slot)
				assert.Equal(t, KindInvalidInput, oe.Kind)
			}
			assert.True(t, errors.Is(err, ErrInvalidInput))
			assert.False(t, errors.Is(err, ErrPartialFailure))
			assert.Nil(t, qe.Partial, "a malformed query carries no partial result")
		})
	}
}

func TestResolveUpstreamFailure(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()

	store := testutil.Store()
	r := newResolver(t, store, fetchingCache(t, down, store))

	_, err := r.Resolve(context.Background(), Query{First: "25544", Second: "43600", Epoch: queryEpoch, Horizon: 1})
	var qe *QueryError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, KindPartialFailure, qe.Kind)
	assert.Equal(t, KindUpstreamFailure, qe.ForSlot(SlotSecond).Kind)

	// Both failing: upstream outranks invalid input.
	_, err = r.Resolve(context.Background(), Query{First: "nope", Second: "43600", Epoch: queryEpoch, Horizon: 1})
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, KindUpstreamFailure, qe.Kind)
	assert.Len(t, qe.Errors, 2)
	assert.True(t, errors.Is(err, ErrUpstreamFailure))
}

func TestResolveFetchesAndCaches(t *testing.T) {
	store := tle.NewStore()
	store.Set(tle.NewDataset("test", time.Now(), testutil.Entries()[:2]))
	r := newResolver(t, store, fetchingCache(t, objectServer(t, 42432), store))

	q := Query{First: "25544", Second: "42432", Epoch: queryEpoch, Horizon: 1}
	res, err := r.Resolve(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, SourceDataset, res.First.ElementSource)
	assert.Equal(t, SourceFetch, res.Second.ElementSource)
	assert.Equal(t, "SES-10", res.Second.Name)

	stats := r.elements.Stats()
	assert.Equal(t, int64(1), stats.Misses, "a fetched object is one cache miss")
	assert.Equal(t, int64(1), stats.Fetches)

	res, err = r.Resolve(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, SourceCache, res.Second.ElementSource)

	stats = r.elements.Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Hits)
}

func TestResolvePropagationFailure(t *testing.T) {
	// Lines that parse as a dataset entry but are not valid SGP4 input.
	bad := tle.TLEEntry{NORADID: 12345, Name: "BROKEN", Line1: "1 12345U", Line2: "2 12345"}
	store := tle.NewStore()
	store.Set(tle.NewDataset("test", time.Now(), append(testutil.Entries(), bad)))
	r := newResolver(t, store, nil)

	_, err := r.Resolve(context.Background(), Query{First: "12345", Second: "27663", Epoch: queryEpoch, Horizon: 2})
	var qe *QueryError
	require.True(t, errors.As(err, &qe))
	oe := qe.ForSlot(SlotFirst)
	require.NotNil(t, oe)
	assert.Equal(t, KindPropagationFailed, oe.Kind)
	assert.Contains(t, oe.Error(), "offset 0")
	assert.NotNil(t, qe.Partial.Second)
}

func TestNormalize(t *testing.T) {
	r := newResolver(t, testutil.Store(), nil)

	tests := []struct {
		name string
		q    Query
		want string
	}{
		{"horizon over budget", Query{Horizon: 1001}, "exceeds the limit of 1000 positions"},
		{"negative horizon", Query{Horizon: -1}, "horizon must be positive"},
		{"sub-second step", Query{Step: time.Millisecond}, "below the minimum"},
		{"fractional step", Query{Step: 1500 * time.Millisecond}, "whole number of seconds"},
		{"span overflow", Query{Step: DefaultStep, Horizon: 1000}, "span limit"},
		{"frame", Query{Frame: "GCRF"}, "unknown frame"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Normalize(tt.q)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.True(t, errors.Is(err, ErrInvalidInput))
		})
	}

	q, err := r.Normalize(Query{Epoch: time.Date(2024, 1, 1, 0, 0, 0, 5e8, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), q.Epoch)
	assert.Equal(t, transform.FrameTEME, q.Frame)
}

func TestResolveInvalidQuery(t *testing.T) {
	r := newResolver(t, testutil.Store(), nil)
	_, err := r.Resolve(context.Background(), Query{First: "25544", Second: "27663", Horizon: 5000})
	var qe *QueryError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, KindInvalidInput, qe.Kind)
	assert.Empty(t, qe.Errors)
}

func TestResolveObject(t *testing.T) {
	r := newResolver(t, testutil.Store(), nil)

	res, err := r.ResolveObject(context.Background(), Query{First: "27663", Epoch: queryEpoch, Step: time.Minute, Horizon: 4})
	require.NoError(t, err)
	require.NotNil(t, res.First)
	assert.Nil(t, res.Second)
	assert.Len(t, res.First.Future, 4)

	_, err = r.ResolveObject(context.Background(), Query{First: "99999999", Epoch: queryEpoch})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestParseID(t *testing.T) {
	for _, ok := range []string{"1", "25544", " 43600 ", "999999999", "0025544"} {
		_, err := ParseID(ok)
		assert.NoError(t, err, ok)
	}
	for _, bad := range []string{"", " ", "0", "+5", "-1", "1e5", "25 544", "1000000000", "99999999999999999999"} {
		_, err := ParseID(bad)
		assert.Error(t, err, bad)
	}
}
