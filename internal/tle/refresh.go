package tle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/star/ascas/internal/metrics"
)

// Refresher pulls a new dataset from the fetcher, installs it in the store
// and writes a snapshot.
type Refresher struct {
	fetcher   *Fetcher
	store     *Store
	snapshots *SnapshotCache
	logger    *slog.Logger
}

// NewRefresher wires a refresher. snapshots may be nil.
func NewRefresher(fetcher *Fetcher, store *Store, snapshots *SnapshotCache, logger *slog.Logger) *Refresher {
	return &Refresher{
		fetcher:   fetcher,
		store:     store,
		snapshots: snapshots,
		logger:    logger,
	}
}

// Refresh performs one fetch. Concurrent calls fail fast with ErrRefreshInProgress.
func (r *Refresher) Refresh(ctx context.Context) (*TLEDataset, error) {
	start := time.Now()
	var raw []byte
	ds, err := r.store.Replace(func() (*TLEDataset, error) {
		data, err := r.fetcher.Fetch(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetching dataset: %w", err)
		}
		entries, err := Parse(bytes.NewReader(data), r.logger)
		if err != nil {
			return nil, fmt.Errorf("parsing dataset: %w", err)
		}
		if len(entries) == 0 {
			return nil, fmt.Errorf("dataset from %s has no valid entries", r.fetcher.SourceURL())
		}
		raw = data
		return NewDataset(r.fetcher.SourceURL(), time.Now(), entries), nil
	})
	if err != nil {
		if !errors.Is(err, ErrRefreshInProgress) {
			metrics.IncTLEFetchErrors()
		}
		return nil, err
	}
	metrics.SetTLEDatasetCount(ds.Len())

	if r.snapshots != nil {
		if err := r.snapshots.Write(raw, ds.FetchedAt); err != nil {
			r.logger.Warn("failed to write TLE snapshot", "error", err)
		}
	}

	r.logger.Info("TLE dataset refreshed",
		"component", "tle",
		"count", ds.Len(),
		"source", r.fetcher.SourceURL(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return ds, nil
}

// Run refreshes whenever the current dataset is missing or older than
// maxAge, checking every interval. Blocks until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context, interval, maxAge time.Duration) {
	check := func() {
		if age, ok := r.store.Age(); ok && age < maxAge {
			return
		}
		if _, err := r.Refresh(ctx); err != nil && !errors.Is(err, ErrRefreshInProgress) {
			r.logger.Warn("TLE refresh failed", "component", "tle", "error", err)
		}
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
			if age, ok := r.store.Age(); ok {
				metrics.SetTLEDatasetAge(age.Seconds())
			}
		}
	}
}
