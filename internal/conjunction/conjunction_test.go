package conjunction

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/star/ascas/internal/catalog"
	"github.com/star/ascas/internal/propagation"
	"github.com/star/ascas/internal/resolver"
	"github.com/star/ascas/internal/testutil"
)

func newAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	store := testutil.Store()
	prop := propagation.NewPropagator(store, propagation.PropConfig{Workers: 2}, testutil.Logger())
	r := resolver.New(store, nil, prop, catalog.Default(), resolver.Config{}, testutil.Logger())
	return NewAnalyzer(r, prop, testutil.Logger())
}

func TestScanFindsParabolaMinimum(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tca := start.Add(37*time.Minute + 13*time.Second)

	sample := func(t time.Time) (Approach, error) {
		dt := t.Sub(tca).Seconds()
		return Approach{Time: t, DistanceKm: 1 + dt*dt/1e4, RelativeSpeedKmS: 7}, nil
	}

	s, err := scan(context.Background(), sample, start, 2*time.Hour)
	require.NoError(t, err)
	assert.True(t, s.Closest.Time.Equal(tca), s.Closest.Time)
	assert.InDelta(t, 1.0, s.Closest.DistanceKm, 1e-9)
	assert.Equal(t, 121, s.Samples)
	assert.Len(t, s.Minima, 1)
}

func TestScanKeepsClosestMinima(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// Period of 10 minutes with a slowly shrinking floor.
	sample := func(t time.Time) (Approach, error) {
		x := t.Sub(start).Seconds()
		d := 100 + 50*math.Cos(2*math.Pi*x/600) - x/1000
		return Approach{Time: t, DistanceKm: d}, nil
	}

	s, err := scan(context.Background(), sample, start, 3*time.Hour)
	require.NoError(t, err)
	require.Len(t, s.Minima, maxMinima)
	for i := 1; i < len(s.Minima); i++ {
		assert.LessOrEqual(t, s.Minima[i-1].DistanceKm, s.Minima[i].DistanceKm)
	}
	assert.Equal(t, s.Minima[0], s.Closest)
}

func TestScanStopsOnSampleError(t *testing.T) {
	boom := errors.New("boom")
	sample := func(t time.Time) (Approach, error) { return Approach{}, boom }

	_, err := scan(context.Background(), sample, time.Now(), time.Hour)
	assert.ErrorIs(t, err, boom)
}

func TestScanHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sample := func(t time.Time) (Approach, error) { return Approach{Time: t}, nil }

	_, err := scan(ctx, sample, time.Now(), time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyzePair(t *testing.T) {
	a := newAnalyzer(t)
	start := testutil.Epoch.Add(6 * time.Hour)

	res, err := a.Analyze(context.Background(), "25544", "27663", start, 3*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 25544, res.First)
	assert.Equal(t, 27663, res.Second)
	assert.False(t, res.Closest.Time.Before(start))
	assert.False(t, res.Closest.Time.After(start.Add(3*time.Hour)))
	assert.Greater(t, res.Closest.DistanceKm, 0.0)
	assert.Less(t, res.Closest.DistanceKm, 2*6800.0)
	assert.Greater(t, res.Closest.RelativeSpeedKmS, 0.0)
	for _, m := range res.Minima {
		assert.GreaterOrEqual(t, m.DistanceKm, res.Closest.DistanceKm)
	}
}

func TestAnalyzeSameObject(t *testing.T) {
	a := newAnalyzer(t)

	res, err := a.Analyze(context.Background(), "42432", "42432", testutil.Epoch, time.Hour)
	require.NoError(t, err)
	assert.InDelta(t, 0, res.Closest.DistanceKm, 1e-9)
}

func TestAnalyzeDefaultWindowAndStart(t *testing.T) {
	a := newAnalyzer(t)
	fixed := testutil.Epoch.Add(90*time.Minute + 400*time.Millisecond)
	a.now = func() time.Time { return fixed }

	res, err := a.Analyze(context.Background(), "25544", "22675", time.Time{}, 0)
	require.NoError(t, err)
	assert.True(t, res.Start.Equal(fixed.Truncate(time.Second)))
	assert.Equal(t, DefaultWindow, res.End.Sub(res.Start))
}

func TestAnalyzeRejectsWindow(t *testing.T) {
	a := newAnalyzer(t)

	for _, w := range []time.Duration{time.Second, MaxWindow + time.Hour, -time.Hour} {
		_, err := a.Analyze(context.Background(), "25544", "27663", testutil.Epoch, w)
		require.Error(t, err, w)
		assert.ErrorIs(t, err, resolver.ErrInvalidInput)
	}
}

func TestAnalyzeObjectErrors(t *testing.T) {
	a := newAnalyzer(t)

	_, err := a.Analyze(context.Background(), "25544", "99999999", testutil.Epoch, time.Hour)
	var qe *resolver.QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, resolver.KindNotFound, qe.Kind)
	require.NotNil(t, qe.ForSlot(resolver.SlotSecond))
	assert.Nil(t, qe.ForSlot(resolver.SlotFirst))

	_, err = a.Analyze(context.Background(), "abc", "99999999", testutil.Epoch, time.Hour)
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, resolver.KindInvalidInput, qe.Kind)
	require.Len(t, qe.Errors, 1)
	assert.Equal(t, resolver.SlotFirst, qe.Errors[0].Slot)
}

func TestAnalyzeCancelled(t *testing.T) {
	a := newAnalyzer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Analyze(ctx, "25544", "27663", testutil.Epoch, time.Hour)
	var qe *resolver.QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, resolver.KindUpstreamFailure, qe.Kind)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, resolver.ErrPropagationFailed))
}
