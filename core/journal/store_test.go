package journal

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/kilianp07/roaming/core/events"
	"github.com/kilianp07/roaming/core/result"
)

func sampleRecords(t *testing.T, base time.Time) []Record {
	t.Helper()
	evs := []events.Completed{
		{Operation: events.OpReserve, Level: "network", Node: "net", Timestamp: base, Target: "evse:DE*AAA*E1",
			ResultType: "success", Result: result.ReservationFailed(result.ReservationSuccess, ""), Runtime: 3 * time.Millisecond},
		{Operation: events.OpRemoteStart, Level: "network", Node: "net", Timestamp: base.Add(time.Minute), Target: "evse:DE*AAA*E1",
			ResultType: "reserved", Runtime: time.Millisecond},
		{Operation: events.OpRemoteStart, Level: "operator", Node: "DE*AAA", Timestamp: base.Add(2 * time.Minute), Target: "evse:DE*AAA*E2",
			ResultType: "success"},
	}
	out := make([]Record, len(evs))
	for i, ev := range evs {
		r, err := FromCompleted(ev)
		if err != nil {
			t.Fatalf("from completed: %v", err)
		}
		out[i] = r
	}
	return out
}

func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	for _, r := range sampleRecords(t, base) {
		if err := s.Append(ctx, r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	all, err := s.Query(ctx, Query{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}

	starts, err := s.Query(ctx, Query{Operation: events.OpRemoteStart, Level: "network"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(starts) != 1 || starts[0].ResultType != "reserved" {
		t.Fatalf("unexpected remote starts %+v", starts)
	}

	window, err := s.Query(ctx, Query{Start: base.Add(30 * time.Second), End: base.Add(90 * time.Second)})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(window) != 1 {
		t.Fatalf("expected 1 record in window, got %d", len(window))
	}

	last, err := s.Query(ctx, Query{Target: "evse:DE*AAA*E1", Limit: 1})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(last) != 1 || last[0].Operation != events.OpRemoteStart {
		t.Fatalf("unexpected limited result %+v", last)
	}
}

func TestJSONLStore(t *testing.T) {
	s, err := NewJSONLStore(filepath.Join(t.TempDir(), "journal", "ops.jsonl"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = s.Close() }()
	exercise(t, s)
}

func TestRotatingJSONLStore(t *testing.T) {
	s, err := NewRotatingJSONLStore(filepath.Join(t.TempDir(), "ops.jsonl"), 1, 2, 1)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = s.Close() }()
	exercise(t, s)
}

func TestRotatingJSONLStore_Rotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ops.jsonl")
	s, err := NewRotatingJSONLStore(path, 1, 2, 1)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = s.Close() }()
	big := make([]byte, 64*1024)
	for i := range big {
		big[i] = 'x'
	}
	payload, _ := json.Marshal(string(big))
	rec := Record{Timestamp: time.Now(), Operation: events.OpSendCDR, Request: payload}
	for i := 0; i < 40; i++ {
		if err := s.Append(context.Background(), rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	files, _ := filepath.Glob(path + "*")
	if len(files) < 2 {
		t.Fatalf("expected rotated files, got %v", files)
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.Close() }()
	exercise(t, s)
}

func TestFromCompletedKeepsResultJSON(t *testing.T) {
	rec, err := FromCompleted(events.Completed{
		Operation:  events.OpReserve,
		ResultType: "success",
		Result:     result.ReservationFailed(result.ReservationOffline, "evse offline"),
		Runtime:    1500 * time.Microsecond,
	})
	if err != nil {
		t.Fatalf("from completed: %v", err)
	}
	if rec.RuntimeMS != 1.5 {
		t.Fatalf("runtime %v", rec.RuntimeMS)
	}
	var m map[string]any
	if err := json.Unmarshal(rec.Result, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["type"] != "offline" {
		t.Fatalf("unexpected result %v", m)
	}
}
