package tle

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	snapshotPrefix = "elements_"
	snapshotSuffix = ".tle"
)

// SnapshotCache keeps raw fetched TLE data on disk so a restart can serve
// positions before the first successful fetch. Files are named by fetch time
// and only the newest maxFiles are kept.
type SnapshotCache struct {
	dir      string
	maxFiles int
}

// NewSnapshotCache creates a cache rooted at dir.
func NewSnapshotCache(dir string, maxFiles int) *SnapshotCache {
	if maxFiles <= 0 {
		maxFiles = 5
	}
	return &SnapshotCache{dir: dir, maxFiles: maxFiles}
}

// Write stores data as the snapshot fetched at ts, then prunes old snapshots.
func (c *SnapshotCache) Write(data []byte, ts time.Time) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}

	path := filepath.Join(c.dir, fmt.Sprintf("%s%d%s", snapshotPrefix, ts.Unix(), snapshotSuffix))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	return c.prune()
}

// LoadLatest returns the newest snapshot and its fetch time.
func (c *SnapshotCache) LoadLatest() ([]byte, time.Time, error) {
	snaps, err := c.list()
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(snaps) == 0 {
		return nil, time.Time{}, fmt.Errorf("no snapshots in %s", c.dir)
	}

	latest := snaps[len(snaps)-1]
	data, err := os.ReadFile(filepath.Join(c.dir, latest.name))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reading snapshot: %w", err)
	}
	return data, latest.ts, nil
}

// LoadLatestDataset parses the newest snapshot into a dataset.
func (c *SnapshotCache) LoadLatestDataset(logger *slog.Logger) (*TLEDataset, error) {
	data, ts, err := c.LoadLatest()
	if err != nil {
		return nil, err
	}
	entries, err := Parse(bytes.NewReader(data), logger)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("snapshot from %s has no valid entries", ts.UTC().Format(time.RFC3339))
	}
	return NewDataset("cache", ts, entries), nil
}

type snapshot struct {
	name string
	ts   time.Time
}

// list returns snapshots oldest first. A missing directory is not an error.
func (c *SnapshotCache) list() ([]snapshot, error) {
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing snapshot dir: %w", err)
	}

	var snaps []snapshot
	for _, e := range dirEntries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, snapshotSuffix) {
			continue
		}
		unix, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), snapshotSuffix), 10, 64)
		if err != nil {
			continue
		}
		snaps = append(snaps, snapshot{name: name, ts: time.Unix(unix, 0)})
	}

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ts.Before(snaps[j].ts) })
	return snaps, nil
}

func (c *SnapshotCache) prune() error {
	snaps, err := c.list()
	if err != nil {
		return err
	}
	if len(snaps) <= c.maxFiles {
		return nil
	}
	for _, s := range snaps[:len(snaps)-c.maxFiles] {
		if err := os.Remove(filepath.Join(c.dir, s.name)); err != nil {
			return fmt.Errorf("pruning snapshot %s: %w", s.name, err)
		}
	}
	return nil
}
