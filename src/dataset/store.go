package dataset

import "sync/atomic"

// Store holds the most recently uploaded snapshot. Uploads swap the pointer
// atomically; a query reads it once and keeps that snapshot for its lifetime.
type Store struct {
	current atomic.Pointer[Snapshot]
}

func NewStore() *Store {
	return &Store{}
}

// Replace installs snap and returns the snapshot it displaced (nil on first upload).
func (s *Store) Replace(snap *Snapshot) *Snapshot {
	return s.current.Swap(snap)
}

// Current returns the active snapshot or nil when nothing was uploaded.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}
