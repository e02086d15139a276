package propagation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/ascas/internal/metrics"
	"github.com/star/ascas/internal/tle"
)

// maxCachedModels bounds the per-dataset model cache. Objects fetched on
// demand outside the dataset also land here.
const maxCachedModels = 4096

// sgp4Cache holds initialized SGP4 models for one dataset generation.
type sgp4Cache struct {
	fetchedAt time.Time
	mu        sync.RWMutex
	props     map[int]*SGP4Propagator
}

// Propagator turns element sets into trajectories. Initialized SGP4 models
// are cached per dataset and rebuilt when the store's dataset changes.
type Propagator struct {
	store  *tle.Store
	pool   *WorkerPool
	config PropConfig
	logger *slog.Logger
	sgp4   atomic.Pointer[sgp4Cache]
	sgp4Mu sync.Mutex // serializes cache generation swaps
}

// NewPropagator creates a propagator backed by store.
func NewPropagator(store *tle.Store, config PropConfig, logger *slog.Logger) *Propagator {
	return &Propagator{
		store:  store,
		pool:   NewWorkerPool(config.Workers, logger),
		config: config,
		logger: logger,
	}
}

// Config returns the propagation settings.
func (p *Propagator) Config() PropConfig {
	return p.config
}

// cache returns the model cache for the current dataset generation,
// starting a new one when the dataset has changed (double-checked locking).
func (p *Propagator) cache() *sgp4Cache {
	var fetchedAt time.Time
	if ds := p.store.Get(); ds != nil {
		fetchedAt = ds.FetchedAt
	}

	if c := p.sgp4.Load(); c != nil && c.fetchedAt.Equal(fetchedAt) {
		return c
	}

	p.sgp4Mu.Lock()
	defer p.sgp4Mu.Unlock()

	if c := p.sgp4.Load(); c != nil && c.fetchedAt.Equal(fetchedAt) {
		return c
	}

	c := &sgp4Cache{fetchedAt: fetchedAt, props: make(map[int]*SGP4Propagator)}
	if old := p.sgp4.Load(); old != nil {
		p.logger.Info("sgp4 model cache reset",
			"component", "propagation",
			"dropped", len(old.props),
			"dataset_fetched_at", fetchedAt.UTC().Format(time.RFC3339),
		)
	}
	p.sgp4.Store(c)
	return c
}

// Prepare returns an initialized SGP4 model for entry, reusing a cached one
// when its lines are unchanged.
func (p *Propagator) Prepare(entry tle.TLEEntry) (*SGP4Propagator, error) {
	c := p.cache()

	c.mu.RLock()
	sp, ok := c.props[entry.NORADID]
	c.mu.RUnlock()
	if ok && sp.line1 == entry.Line1 && sp.line2 == entry.Line2 {
		return sp, nil
	}

	sp, err := NewSGP4Propagator(entry.Line1, entry.Line2, entry.NORADID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if len(c.props) >= maxCachedModels {
		clear(c.props)
	}
	c.props[entry.NORADID] = sp
	c.mu.Unlock()
	return sp, nil
}

// Trajectory propagates entry to epoch and to epoch + i*step for
// i = 1..horizon. A sample SGP4 cannot produce fails the whole trajectory
// with a *SampleError naming the offset.
func (p *Propagator) Trajectory(ctx context.Context, entry tle.TLEEntry, epoch time.Time, step time.Duration, horizon int) (*Trajectory, error) {
	if step <= 0 {
		return nil, fmt.Errorf("step must be positive, got %s", step)
	}
	if horizon < 1 {
		return nil, fmt.Errorf("horizon must be at least 1, got %d", horizon)
	}

	sp, err := p.Prepare(entry)
	if err != nil {
		return nil, &SampleError{NORADID: entry.NORADID, Offset: 0, Err: err}
	}

	start := time.Now()
	defer func() { metrics.ObservePropagation(time.Since(start)) }()

	samples := make([]Sample, 0, horizon+1)
	for i := 0; i <= horizon; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		at := epoch.Add(time.Duration(i) * step)
		state, err := sp.Propagate(at)
		if err != nil {
			return nil, &SampleError{NORADID: entry.NORADID, Offset: i, Err: err}
		}
		samples = append(samples, Sample{Offset: i, Time: at, State: state})
	}

	return &Trajectory{
		Entry:   entry,
		Current: samples[0],
		Future:  samples[1:],
	}, nil
}

// Trajectories runs several jobs concurrently on the worker pool and
// returns results in job order.
func (p *Propagator) Trajectories(ctx context.Context, jobs []Job) []JobResult {
	return p.pool.Run(ctx, jobs, func(ctx context.Context, job Job) JobResult {
		traj, err := p.Trajectory(ctx, job.Entry, job.Epoch, job.Step, job.Horizon)
		if err != nil {
			return JobResult{Err: err}
		}
		return JobResult{Trajectory: traj}
	})
}
