// Package cache holds element sets fetched on demand for objects missing
// from the bulk dataset.
//
// Entries expire after a TTL. A background loop evicts expired entries and,
// when the bulk dataset changes, drops every cached object the new dataset
// already carries at the same or a newer epoch.
package cache

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/star/ascas/internal/metrics"
	"github.com/star/ascas/internal/tle"
)

// Config holds element cache settings.
type Config struct {
	TTL           time.Duration // how long a fetched element set is served (default: 6h)
	SweepInterval time.Duration // eviction and dataset-change check period (default: 1m)
	MaxEntries    int           // hard cap; the oldest entry is evicted first (default: 1024)
	FetchTimeout  time.Duration // bound on one shared per-object fetch (default: 30s)
}

// ObjectFetcher retrieves a single object's element set.
type ObjectFetcher interface {
	FetchObject(ctx context.Context, noradID int) (tle.TLEEntry, error)
}

// CacheEntry wraps an element set with the time it was fetched.
type CacheEntry struct {
	Entry     tle.TLEEntry
	FetchedAt time.Time
}

// ElementCache is a TTL cache in front of an ObjectFetcher. Concurrent
// requests for the same missing object share one fetch. Safe for concurrent
// use by multiple goroutines.
type ElementCache struct {
	mu      sync.RWMutex
	entries map[int]*CacheEntry

	config  Config
	fetcher ObjectFetcher
	store   *tle.Store
	logger  *slog.Logger
	group   singleflight.Group
	now     func() time.Time

	// Dataset generation the entries were last reconciled against.
	currentFetchedAt time.Time

	hits        atomic.Int64
	misses      atomic.Int64
	evictions   atomic.Int64
	fetches     atomic.Int64
	fetchErrors atomic.Int64
}

// NewElementCache creates an element cache. fetcher may be nil, in which
// case the cache only serves what was put into it.
func NewElementCache(config Config, fetcher ObjectFetcher, store *tle.Store, logger *slog.Logger) *ElementCache {
	if config.TTL <= 0 {
		config.TTL = 6 * time.Hour
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = time.Minute
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 1024
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 30 * time.Second
	}

	logger.Info("element cache initialized",
		"component", "cache",
		"ttl_seconds", config.TTL.Seconds(),
		"sweep_seconds", config.SweepInterval.Seconds(),
		"max_entries", config.MaxEntries,
		"fetch_enabled", fetcher != nil,
	)

	return &ElementCache{
		entries: make(map[int]*CacheEntry),
		config:  config,
		fetcher: fetcher,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// Get returns a cached, unexpired element set.
func (c *ElementCache) Get(noradID int) (tle.TLEEntry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[noradID]
	c.mu.RUnlock()

	if ok && c.now().Sub(entry.FetchedAt) < c.config.TTL {
		c.hits.Add(1)
		metrics.IncCacheHit()
		return entry.Entry, true
	}

	c.misses.Add(1)
	metrics.IncCacheMiss()
	return tle.TLEEntry{}, false
}

// peek is Get without touching the hit and miss counters.
func (c *ElementCache) peek(noradID int) (tle.TLEEntry, bool) {
	c.mu.RLock()
	entry, ok := c.entries[noradID]
	c.mu.RUnlock()
	if ok && c.now().Sub(entry.FetchedAt) < c.config.TTL {
		return entry.Entry, true
	}
	return tle.TLEEntry{}, false
}

// FetchEnabled reports whether misses can be filled from the fetcher.
func (c *ElementCache) FetchEnabled() bool {
	return c.fetcher != nil
}

// Resolve returns the element set for noradID from the cache, fetching and
// caching it on a miss. Fetch errors are returned unchanged so callers can
// tell missing data (tle.ErrNoData) from transport failures.
func (c *ElementCache) Resolve(ctx context.Context, noradID int) (tle.TLEEntry, error) {
	if e, ok := c.Get(noradID); ok {
		return e, nil
	}
	return c.Fetch(ctx, noradID)
}

// Fetch fills a miss the caller has already counted through Get.
// Concurrent callers for the same object share one fetch, which runs
// detached from any single caller's cancellation and is bounded by
// FetchTimeout instead. A caller whose ctx ends stops waiting and gets
// ctx.Err(); the shared fetch carries on for the others.
func (c *ElementCache) Fetch(ctx context.Context, noradID int) (tle.TLEEntry, error) {
	if c.fetcher == nil {
		return tle.TLEEntry{}, tle.ErrNoData
	}

	flight := context.WithoutCancel(ctx)
	ch := c.group.DoChan(strconv.Itoa(noradID), func() (any, error) {
		// A flight that finished between Get and DoChan already filled the entry.
		if e, ok := c.peek(noradID); ok {
			return e, nil
		}
		fctx, cancel := context.WithTimeout(flight, c.config.FetchTimeout)
		defer cancel()

		c.fetches.Add(1)
		e, err := c.fetcher.FetchObject(fctx, noradID)
		if err != nil {
			c.fetchErrors.Add(1)
			return nil, err
		}
		c.Put(e)
		return e, nil
	})

	select {
	case <-ctx.Done():
		return tle.TLEEntry{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return tle.TLEEntry{}, res.Err
		}
		if res.Shared {
			c.logger.Debug("element fetch shared", "component", "cache", "norad_id", noradID)
		}
		return res.Val.(tle.TLEEntry), nil
	}
}

// Put stores an element set, evicting the oldest entry when full.
func (c *ElementCache) Put(e tle.TLEEntry) {
	c.mu.Lock()
	if _, exists := c.entries[e.NORADID]; !exists && len(c.entries) >= c.config.MaxEntries {
		c.evictOldestLocked()
	}
	c.entries[e.NORADID] = &CacheEntry{Entry: e, FetchedAt: c.now()}
	n := len(c.entries)
	c.mu.Unlock()

	metrics.SetCacheEntries(n)
}

func (c *ElementCache) evictOldestLocked() {
	var oldestID int
	var oldest time.Time
	for id, entry := range c.entries {
		if oldest.IsZero() || entry.FetchedAt.Before(oldest) {
			oldestID, oldest = id, entry.FetchedAt
		}
	}
	if !oldest.IsZero() {
		delete(c.entries, oldestID)
		c.evictions.Add(1)
		metrics.AddCacheEvictions(1)
	}
}

// evictExpired removes entries older than the TTL.
func (c *ElementCache) evictExpired() int {
	cutoff := c.now().Add(-c.config.TTL)
	var removed int

	c.mu.Lock()
	for id, entry := range c.entries {
		if !entry.FetchedAt.After(cutoff) {
			delete(c.entries, id)
			removed++
		}
	}
	n := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		c.evictions.Add(int64(removed))
		metrics.AddCacheEvictions(removed)
		metrics.SetCacheEntries(n)
		c.logger.Debug("cache eviction", "component", "cache", "entries_removed", removed)
	}
	return removed
}

// Stats returns current cache statistics.
func (c *ElementCache) Stats() CacheStats {
	c.mu.RLock()
	count := len(c.entries)

	var oldest, newest time.Time
	for _, entry := range c.entries {
		if oldest.IsZero() || entry.FetchedAt.Before(oldest) {
			oldest = entry.FetchedAt
		}
		if newest.IsZero() || entry.FetchedAt.After(newest) {
			newest = entry.FetchedAt
		}
	}
	c.mu.RUnlock()

	return CacheStats{
		Entries:     count,
		OldestFetch: oldest,
		NewestFetch: newest,
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Fetches:     c.fetches.Load(),
		FetchErrors: c.fetchErrors.Load(),
		TTLSeconds:  c.config.TTL.Seconds(),
	}
}

// CacheStats holds cache statistics for the stats endpoint.
type CacheStats struct {
	Entries     int       `json:"entries"`
	OldestFetch time.Time `json:"oldest_fetch"`
	NewestFetch time.Time `json:"newest_fetch"`
	Hits        int64     `json:"hits"`
	Misses      int64     `json:"misses"`
	Evictions   int64     `json:"evictions"`
	Fetches     int64     `json:"fetches"`
	FetchErrors int64     `json:"fetch_errors"`
	TTLSeconds  float64   `json:"ttl_seconds"`
}
