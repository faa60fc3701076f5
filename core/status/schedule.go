// Package status tracks bounded, time ordered status histories and computes
// aggregate statuses from child snapshots.
package status

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// DefaultCapacity is the history size used when none is configured.
const DefaultCapacity = 15

// ErrOutOfOrder is returned when an entry is older than the current status.
var ErrOutOfOrder = errors.New("status timestamp older than current entry")

// Entry is one recorded status.
type Entry[S comparable] struct {
	Status    S         `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ChangeFunc is invoked after the current status changed.
type ChangeFunc[S comparable] func(old, updated Entry[S])

// Schedule keeps the most recent statuses of an entity, newest first.
// Inserts must have non-decreasing timestamps; older inserts are rejected so
// the current status never regresses.
type Schedule[S comparable] struct {
	mu       sync.RWMutex
	capacity int
	entries  []Entry[S]
	onChange []ChangeFunc[S]
}

// NewSchedule returns a schedule holding initial as its current status.
func NewSchedule[S comparable](capacity int, initial S, at time.Time) *Schedule[S] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Schedule[S]{
		capacity: capacity,
		entries:  []Entry[S]{{Status: initial, Timestamp: at}},
	}
}

// OnChange registers fn to be called after every effective change.
func (s *Schedule[S]) OnChange(fn ChangeFunc[S]) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// Insert records status at ts. It reports whether the current status changed.
// Inserting the current status again is a no-op.
func (s *Schedule[S]) Insert(st S, ts time.Time) (bool, error) {
	s.mu.Lock()
	cur := s.entries[0]
	if ts.Before(cur.Timestamp) {
		s.mu.Unlock()
		return false, fmt.Errorf("%w: %s < %s", ErrOutOfOrder, ts.Format(time.RFC3339Nano), cur.Timestamp.Format(time.RFC3339Nano))
	}
	if st == cur.Status {
		s.mu.Unlock()
		return false, nil
	}
	next := Entry[S]{Status: st, Timestamp: ts}
	s.entries = append([]Entry[S]{next}, s.entries...)
	if len(s.entries) > s.capacity {
		s.entries = s.entries[:s.capacity]
	}
	observers := append([]ChangeFunc[S](nil), s.onChange...)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(cur, next)
	}
	return true, nil
}

// Current returns the current status.
func (s *Schedule[S]) Current() S {
	return s.CurrentEntry().Status
}

// CurrentEntry returns the current status with its timestamp.
func (s *Schedule[S]) CurrentEntry() Entry[S] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[0]
}

// History returns a copy of the recorded entries, newest first.
func (s *Schedule[S]) History() []Entry[S] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry[S], len(s.entries))
	copy(out, s.entries)
	return out
}

// Len returns the number of retained entries.
func (s *Schedule[S]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
