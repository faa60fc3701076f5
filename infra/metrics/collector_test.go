package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kilianp07/roaming/core/events"
	coremetrics "github.com/kilianp07/roaming/core/metrics"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/result"
	"github.com/kilianp07/roaming/internal/eventbus"
)

type recordingSink struct {
	mu       sync.Mutex
	ops      []coremetrics.OperationEvent
	cdrs     []coremetrics.CDREvent
	statuses []coremetrics.StatusEvent
}

func (r *recordingSink) RecordOperation(ev coremetrics.OperationEvent) error {
	r.mu.Lock()
	r.ops = append(r.ops, ev)
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) RecordCDR(ev coremetrics.CDREvent) error {
	r.mu.Lock()
	r.cdrs = append(r.cdrs, ev)
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) RecordStatus(ev coremetrics.StatusEvent) error {
	r.mu.Lock()
	r.statuses = append(r.statuses, ev)
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) counts() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops), len(r.cdrs), len(r.statuses)
}

func TestStartEventCollector(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	sink := &recordingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartEventCollector(ctx, bus, sink)

	now := time.Now()
	bus.Publish(events.Requested{Operation: events.OpReserve, Level: "network"})
	bus.Publish(events.Completed{Operation: events.OpReserve, Level: "network", ResultType: "success", Timestamp: now})
	bus.Publish(events.Completed{
		Operation:  events.OpSendCDR,
		Level:      "authorization",
		ResultType: "forwarded",
		Request:    model.ChargeDetailRecord{SessionID: "s1", OperatorID: "DE*AAA"},
		Result:     result.SendCDR{Type: result.CDRForwarded, SessionID: "s1", Backend: "emp"},
		Timestamp:  now,
	})
	bus.Publish(events.StatusChanged{Kind: model.KindEVSE, ID: "E1", NewStatus: "charging", Timestamp: now})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if o, c, s := sink.counts(); o == 2 && c == 1 && s == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	o, c, s := sink.counts()
	if o != 2 || c != 1 || s != 1 {
		t.Fatalf("unexpected counts ops=%d cdrs=%d statuses=%d", o, c, s)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.cdrs[0].Backend != "emp" || sink.cdrs[0].CDR.SessionID != "s1" {
		t.Fatalf("unexpected cdr event: %+v", sink.cdrs[0])
	}
	if sink.statuses[0].Kind != "evse" || sink.statuses[0].Status != "charging" {
		t.Fatalf("unexpected status event: %+v", sink.statuses[0])
	}
}

func TestStartEventCollector_NilArgs(t *testing.T) {
	StartEventCollector(context.Background(), nil, coremetrics.NopSink{})
	StartEventCollector(context.Background(), eventbus.New(), nil)
}
