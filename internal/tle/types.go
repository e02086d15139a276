package tle

import "time"

// TLEEntry is one object's two-line element set as read from a source.
type TLEEntry struct {
	NORADID int
	Name    string
	Epoch   time.Time
	Line1   string
	Line2   string
}

// EpochRange is the oldest and newest element epoch in a dataset.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// TLEDataset is a complete snapshot of element sets from one fetch or cache load.
// Immutable once built with NewDataset.
type TLEDataset struct {
	Source     string
	FetchedAt  time.Time
	EpochRange EpochRange
	Satellites []TLEEntry

	index map[int]int
}

// NewDataset builds a dataset and its lookup index. When an object appears
// more than once, the entry with the newest epoch wins the index slot.
func NewDataset(source string, fetchedAt time.Time, entries []TLEEntry) *TLEDataset {
	ds := &TLEDataset{
		Source:     source,
		FetchedAt:  fetchedAt,
		Satellites: entries,
		index:      make(map[int]int, len(entries)),
	}
	for i, e := range entries {
		if i == 0 || e.Epoch.Before(ds.EpochRange.Min) {
			ds.EpochRange.Min = e.Epoch
		}
		if i == 0 || e.Epoch.After(ds.EpochRange.Max) {
			ds.EpochRange.Max = e.Epoch
		}
		if j, ok := ds.index[e.NORADID]; ok && !e.Epoch.After(entries[j].Epoch) {
			continue
		}
		ds.index[e.NORADID] = i
	}
	return ds
}

// Lookup returns the entry for a NORAD ID.
func (ds *TLEDataset) Lookup(noradID int) (TLEEntry, bool) {
	if ds == nil {
		return TLEEntry{}, false
	}
	if ds.index == nil {
		// Datasets built as struct literals have no index; fall back to a scan.
		for _, e := range ds.Satellites {
			if e.NORADID == noradID {
				return e, true
			}
		}
		return TLEEntry{}, false
	}
	i, ok := ds.index[noradID]
	if !ok {
		return TLEEntry{}, false
	}
	return ds.Satellites[i], true
}

// Len returns the number of entries.
func (ds *TLEDataset) Len() int {
	if ds == nil {
		return 0
	}
	return len(ds.Satellites)
}
