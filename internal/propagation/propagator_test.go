package propagation

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"testing"
	"time"

	"github.com/star/ascas/internal/testutil"
	"github.com/star/ascas/internal/tle"
	"github.com/star/ascas/internal/transform"
)

// Real ISS elements with drag, for propagation close to the element epoch.
const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testConfig() PropConfig {
	return PropConfig{Workers: 2, Step: time.Minute, Horizon: 3, MaxPositions: 100}
}

// TestPropagateSingle verifies that a single satellite can be propagated
// and that the ECEF output is reasonable.
func TestPropagateSingle(t *testing.T) {
	prop, err := NewSGP4Propagator(issLine1, issLine2, 25544)
	if err != nil {
		t.Fatalf("NewSGP4Propagator failed: %v", err)
	}

	target := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	teme, err := prop.Propagate(target)
	if err != nil {
		t.Fatalf("Propagate failed: %v", err)
	}

	// ISS orbits about 420 km up: ~6791 km from the center.
	mag := transform.State(teme).Radius()
	if mag < 6500 || mag > 7000 {
		t.Errorf("TEME position magnitude = %.1f km, expected ~6791 km (ISS orbit)", mag)
	}

	ecef := transform.TEMEToECEF(teme, target)
	if !transform.ValidRadius(ecef.X, ecef.Y, ecef.Z) {
		t.Errorf("ECEF position failed validation: [%.1f, %.1f, %.1f] km", ecef.X, ecef.Y, ecef.Z)
	}
	if math.Abs(transform.State(ecef).Radius()-mag) > 1e-6 {
		t.Errorf("ECEF magnitude = %.6f km, TEME magnitude = %.6f km (should match)", transform.State(ecef).Radius(), mag)
	}
}

// TestPropagateInvalidTLE verifies that an invalid TLE returns an error.
func TestPropagateInvalidTLE(t *testing.T) {
	tests := []struct {
		name         string
		line1, line2 string
	}{
		{"garbage", "invalid line 1", "invalid line 2"},
		{"swapped lines", issLine2, issLine1},
		{"truncated line 2", issLine1, issLine2[:60]},
		{"missing separator", issLine1, "2X" + issLine2[2:]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSGP4Propagator(tt.line1, tt.line2, 99999)
			if err == nil {
				t.Fatal("expected error for invalid TLE, got nil")
			}
			if !errors.Is(err, ErrInvalidElements) {
				t.Errorf("err = %v, want ErrInvalidElements", err)
			}
		})
	}
}

// TestTrajectoryOffsets verifies the sample layout: offset 0 at the epoch,
// then 1..horizon whole steps after it.
func TestTrajectoryOffsets(t *testing.T) {
	p := NewPropagator(testutil.Store(), testConfig(), testLogger())
	entry := testutil.Entries()[0]
	epoch := testutil.Epoch.Add(24 * time.Hour)

	traj, err := p.Trajectory(context.Background(), entry, epoch, time.Minute, 3)
	if err != nil {
		t.Fatalf("Trajectory failed: %v", err)
	}

	if traj.Current.Offset != 0 || !traj.Current.Time.Equal(epoch) {
		t.Errorf("current sample = offset %d at %v", traj.Current.Offset, traj.Current.Time)
	}
	if len(traj.Future) != 3 {
		t.Fatalf("got %d future samples, want 3", len(traj.Future))
	}
	for i, s := range traj.Future {
		if s.Offset != i+1 {
			t.Errorf("sample %d offset = %d, want %d", i, s.Offset, i+1)
		}
		want := epoch.Add(time.Duration(i+1) * time.Minute)
		if !s.Time.Equal(want) {
			t.Errorf("sample %d time = %v, want %v", i, s.Time, want)
		}
	}

	// Consecutive LEO samples a minute apart are a few hundred km apart.
	d, _ := transform.Separation(transform.State(traj.Current.State), transform.State(traj.Future[0].State))
	if d < 300 || d > 600 {
		t.Errorf("one-minute displacement = %.1f km, want ~460 km", d)
	}
}

// TestTrajectoryDeterministic verifies identical inputs give identical output.
func TestTrajectoryDeterministic(t *testing.T) {
	p := NewPropagator(testutil.Store(), testConfig(), testLogger())
	entry := testutil.Entries()[1]

	a, err := p.Trajectory(context.Background(), entry, testutil.Epoch, time.Hour, 5)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Trajectory(context.Background(), entry, testutil.Epoch, time.Hour, 5)
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Future {
		if a.Future[i].State != b.Future[i].State {
			t.Errorf("sample %d differs: %+v vs %+v", i, a.Future[i].State, b.Future[i].State)
		}
	}
}

// TestTrajectoryYearlyGEO verifies the default yearly step over ten samples
// stays near geostationary radius.
func TestTrajectoryYearlyGEO(t *testing.T) {
	p := NewPropagator(testutil.Store(), testConfig(), testLogger())
	geo := testutil.Entries()[2]

	year := time.Duration(365.25 * 24 * float64(time.Hour))
	traj, err := p.Trajectory(context.Background(), geo, testutil.Epoch, year, 10)
	if err != nil {
		t.Fatalf("Trajectory failed: %v", err)
	}
	for _, s := range append([]Sample{traj.Current}, traj.Future...) {
		r := transform.State(s.State).Radius()
		if math.Abs(r-42164) > 100 {
			t.Errorf("offset %d radius = %.1f km, want ~42164 km", s.Offset, r)
		}
	}
}

func TestTrajectoryRejectsBadArguments(t *testing.T) {
	p := NewPropagator(testutil.Store(), testConfig(), testLogger())
	entry := testutil.Entries()[0]

	if _, err := p.Trajectory(context.Background(), entry, testutil.Epoch, 0, 3); err == nil {
		t.Error("expected error for zero step")
	}
	if _, err := p.Trajectory(context.Background(), entry, testutil.Epoch, time.Minute, 0); err == nil {
		t.Error("expected error for zero horizon")
	}
}

func TestTrajectoryInvalidElements(t *testing.T) {
	p := NewPropagator(testutil.Store(), testConfig(), testLogger())
	bad := tle.TLEEntry{NORADID: 7, Line1: "1 00007U", Line2: "2 00007"}

	_, err := p.Trajectory(context.Background(), bad, testutil.Epoch, time.Minute, 3)
	var se *SampleError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *SampleError", err)
	}
	if se.NORADID != 7 || se.Offset != 0 {
		t.Errorf("SampleError = %+v", se)
	}
}

func TestPrepareReusesModels(t *testing.T) {
	store := testutil.Store()
	p := NewPropagator(store, testConfig(), testLogger())
	entry := testutil.Entries()[0]

	a, err := p.Prepare(entry)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Prepare(entry)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("expected cached model on second Prepare")
	}

	// New element lines for the same object replace the cached model.
	changed := entry
	changed.Line1, changed.Line2 = issLine1, issLine2
	c, err := p.Prepare(changed)
	if err != nil {
		t.Fatal(err)
	}
	if c == a {
		t.Error("changed element lines should build a new model")
	}

	// A new dataset generation drops the cache.
	store.Set(tle.NewDataset("test", time.Now().Add(time.Hour), testutil.Entries()))
	d, err := p.Prepare(entry)
	if err != nil {
		t.Fatal(err)
	}
	if d == a {
		t.Error("dataset change should reset the model cache")
	}
}

// TestTrajectoriesOrder verifies pool results come back in job order.
func TestTrajectoriesOrder(t *testing.T) {
	p := NewPropagator(testutil.Store(), testConfig(), testLogger())

	var jobs []Job
	for _, e := range testutil.Entries() {
		jobs = append(jobs, Job{Entry: e, Epoch: testutil.Epoch, Step: time.Minute, Horizon: 2})
	}
	jobs = append(jobs, Job{Entry: tle.TLEEntry{NORADID: 1, Line1: "x", Line2: "y"}, Epoch: testutil.Epoch, Step: time.Minute, Horizon: 2})

	results := p.Trajectories(context.Background(), jobs)
	if len(results) != len(jobs) {
		t.Fatalf("got %d results, want %d", len(results), len(jobs))
	}
	for i, r := range results[:len(results)-1] {
		if r.Err != nil {
			t.Errorf("job %d failed: %v", i, r.Err)
			continue
		}
		if r.Trajectory.Entry.NORADID != jobs[i].Entry.NORADID {
			t.Errorf("result %d is for NORAD %d, want %d", i, r.Trajectory.Entry.NORADID, jobs[i].Entry.NORADID)
		}
	}
	if results[len(results)-1].Err == nil {
		t.Error("expected error for the invalid job")
	}
}

// TestWorkerPoolCancellation verifies the worker pool respects context cancellation.
func TestWorkerPoolCancellation(t *testing.T) {
	pool := NewWorkerPool(2, testLogger())

	jobs := make([]Job, 50)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int
	results := pool.Run(ctx, jobs, func(ctx context.Context, j Job) JobResult {
		calls++
		return JobResult{}
	})

	if calls != 0 {
		t.Errorf("fn called %d times on a cancelled context", calls)
	}
	for i, r := range results {
		if !errors.Is(r.Err, context.Canceled) {
			t.Fatalf("result %d err = %v, want context.Canceled", i, r.Err)
		}
	}
}

// BenchmarkTrajectory benchmarks one object over a 100-sample horizon.
func BenchmarkTrajectory(b *testing.B) {
	p := NewPropagator(testutil.Store(), testConfig(), testLogger())
	entry := testutil.Entries()[0]
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.Trajectory(ctx, entry, testutil.Epoch, time.Minute, 100); err != nil {
			b.Fatal(err)
		}
	}
}
