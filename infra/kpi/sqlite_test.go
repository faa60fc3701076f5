package kpi

import (
	"path/filepath"
	"testing"
	"time"

	core "github.com/kilianp07/roaming/core/kpi"
)

func TestSQLiteStore_Upsert(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "kpi.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.Close() }()

	d := core.Day(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	for _, r := range []core.Record{
		{OperatorID: "DE*AAA", Date: d, Sessions: 1, EnergyKWh: 5, DurationSec: 60},
		{OperatorID: "DE*AAA", Date: d.Add(3 * time.Hour), Sessions: 1, EnergyKWh: 7, DurationSec: 120},
		{OperatorID: "DE*BBB", Date: d, Sessions: 1, EnergyKWh: 1},
	} {
		if err := s.Add(r); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	recs, err := s.Query("DE*AAA", d, d)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	r := recs[0]
	if r.Sessions != 2 || r.EnergyKWh != 12 || r.DurationSec != 180 || !r.Date.Equal(d) {
		t.Fatalf("unexpected record %+v", r)
	}
}
