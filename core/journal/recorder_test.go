package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kilianp07/roaming/core/events"
	"github.com/kilianp07/roaming/internal/eventbus"
)

func TestRecorderKeepsConfiguredLevels(t *testing.T) {
	s, err := NewJSONLStore(filepath.Join(t.TempDir(), "ops.jsonl"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	bus := eventbus.New()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartRecorder(ctx, bus, s, nil, "network")

	bus.Publish(events.Requested{Operation: events.OpReserve, Level: "network"})
	bus.Publish(events.Completed{Operation: events.OpReserve, Level: "operator", ResultType: "success"})
	bus.Publish(events.Completed{Operation: events.OpReserve, Level: "network", ResultType: "success", Timestamp: time.Now()})

	deadline := time.Now().Add(2 * time.Second)
	for {
		recs, err := s.Query(ctx, Query{})
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(recs) == 1 {
			if recs[0].Level != "network" {
				t.Fatalf("unexpected level %s", recs[0].Level)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 1 record, got %d", len(recs))
		}
		time.Sleep(10 * time.Millisecond)
	}
}
