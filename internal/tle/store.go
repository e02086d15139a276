package tle

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrRefreshInProgress is returned by Store.Replace while another
// replacement is running.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// Store publishes the current dataset. Lookups read an atomic pointer and
// never wait on a replacement.
type Store struct {
	current atomic.Pointer[TLEDataset]
	replace sync.Mutex
}

func NewStore() *Store {
	return &Store{}
}

// Get returns the current dataset, or nil if none has been loaded.
func (s *Store) Get() *TLEDataset {
	return s.current.Load()
}

// Set installs ds unconditionally. Used for snapshots and fixtures.
func (s *Store) Set(ds *TLEDataset) {
	s.current.Store(ds)
}

// Replace builds a new dataset with build and installs it. Only one
// replacement runs at a time; a concurrent call returns
// ErrRefreshInProgress without invoking build. A failed build leaves the
// current dataset in place.
func (s *Store) Replace(build func() (*TLEDataset, error)) (*TLEDataset, error) {
	if !s.replace.TryLock() {
		return nil, ErrRefreshInProgress
	}
	defer s.replace.Unlock()

	ds, err := build()
	if err != nil {
		return nil, err
	}
	s.current.Store(ds)
	return ds, nil
}

func (s *Store) Lookup(noradID int) (TLEEntry, bool) {
	return s.current.Load().Lookup(noradID)
}

// Age reports how long ago the current dataset was fetched. ok is false
// when nothing is loaded.
func (s *Store) Age() (age time.Duration, ok bool) {
	ds := s.current.Load()
	if ds == nil {
		return 0, false
	}
	return time.Since(ds.FetchedAt), true
}
