package cache

import (
	"context"
	"time"

	"github.com/star/ascas/internal/metrics"
)

// Start runs the maintenance loop: every sweep interval it reconciles with
// a changed dataset and evicts expired entries. Blocks until ctx is cancelled.
func (c *ElementCache) Start(ctx context.Context) {
	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("element cache sweeper stopped", "component", "cache")
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

// tick runs one iteration of the maintenance loop.
func (c *ElementCache) tick() {
	if c.datasetChanged() {
		c.reconcile()
	}
	c.evictExpired()
}

// datasetChanged reports whether the bulk dataset was replaced since the
// last reconcile.
func (c *ElementCache) datasetChanged() bool {
	if c.store == nil {
		return false
	}
	ds := c.store.Get()
	if ds == nil {
		return false
	}
	return !ds.FetchedAt.Equal(c.currentFetchedAt)
}

// reconcile drops cached objects that the current dataset carries at the
// same or a newer epoch, since lookups consult the dataset first.
func (c *ElementCache) reconcile() {
	ds := c.store.Get()
	if ds == nil {
		return
	}

	var dropped int
	c.mu.Lock()
	for id, entry := range c.entries {
		if fresh, ok := ds.Lookup(id); ok && !fresh.Epoch.Before(entry.Entry.Epoch) {
			delete(c.entries, id)
			dropped++
		}
	}
	n := len(c.entries)
	c.mu.Unlock()

	c.logger.Info("element cache reconciled with new dataset",
		"component", "cache",
		"old_dataset_fetched_at", c.currentFetchedAt.UTC().Format(time.RFC3339),
		"new_dataset_fetched_at", ds.FetchedAt.UTC().Format(time.RFC3339),
		"entries_dropped", dropped,
	)
	c.currentFetchedAt = ds.FetchedAt

	if dropped > 0 {
		c.evictions.Add(int64(dropped))
		metrics.AddCacheEvictions(dropped)
		metrics.SetCacheEntries(n)
	}
}
