package propagation

import (
	"context"
	"log/slog"
	"sync"
)

// indexedJob pairs a job with its position in the caller's slice so results
// can be returned in input order.
type indexedJob struct {
	index int
	job   Job
}

type indexedResult struct {
	index  int
	result JobResult
}

// WorkerPool runs trajectory jobs on a fixed number of goroutines.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// Run executes fn for every job and returns the results in job order. Jobs
// not started before ctx is cancelled get ctx.Err() as their error.
func (wp *WorkerPool) Run(ctx context.Context, jobs []Job, fn func(context.Context, Job) JobResult) []JobResult {
	out := make([]JobResult, len(jobs))
	if len(jobs) == 0 {
		return out
	}

	n := min(wp.workers, len(jobs))
	queue := make(chan indexedJob, n*2)
	results := make(chan indexedResult, n*2)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ij := range queue {
				var r JobResult
				if err := ctx.Err(); err != nil {
					r = JobResult{Err: err}
				} else {
					r = fn(ctx, ij.job)
				}
				results <- indexedResult{index: ij.index, result: r}
			}
		}()
	}

	go func() {
		defer close(queue)
		for i, job := range jobs {
			queue <- indexedJob{index: i, job: job}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var failed int
	for r := range results {
		out[r.index] = r.result
		if r.result.Err != nil {
			failed++
		}
	}

	if failed > 0 {
		wp.logger.Debug("propagation batch finished with failures",
			"jobs", len(jobs),
			"failed", failed,
		)
	}
	return out
}
