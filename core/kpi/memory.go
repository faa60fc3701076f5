package kpi

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore stores records in memory for testing or lightweight usage.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]map[time.Time]*Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]map[time.Time]*Record{}}
}

// Add inserts or updates the record aggregated by day and operator.
func (s *MemoryStore) Add(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[r.OperatorID] == nil {
		s.data[r.OperatorID] = map[time.Time]*Record{}
	}
	d := Day(r.Date)
	rec := s.data[r.OperatorID][d]
	if rec == nil {
		rec = &Record{OperatorID: r.OperatorID, Date: d}
		s.data[r.OperatorID][d] = rec
	}
	rec.Sessions += r.Sessions
	rec.EnergyKWh += r.EnergyKWh
	rec.DurationSec += r.DurationSec
	return nil
}

// Query returns records between start and end inclusive.
func (s *MemoryStore) Query(operatorID string, start, end time.Time) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start = Day(start)
	end = Day(end)
	var res []Record
	for d, r := range s.data[operatorID] {
		if d.Before(start) || d.After(end) {
			continue
		}
		res = append(res, *r)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Date.Before(res[j].Date) })
	return res, nil
}
