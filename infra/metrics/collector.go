package metrics

import (
	"context"

	"github.com/kilianp07/roaming/core/events"
	coremetrics "github.com/kilianp07/roaming/core/metrics"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/result"
	"github.com/kilianp07/roaming/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for events.
// It stops when the context is canceled.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				collect(sink, ev)
			}
		}
	}()
}

func collect(sink coremetrics.MetricsSink, ev eventbus.Event) {
	switch e := ev.(type) {
	case events.Completed:
		_ = sink.RecordOperation(coremetrics.OperationEvent{
			Operation: string(e.Operation),
			Level:     e.Level,
			Node:      e.Node,
			Target:    e.Target,
			Result:    e.ResultType,
			Runtime:   e.Runtime,
			Time:      e.Timestamp,
		})
		if e.Operation != events.OpSendCDR {
			return
		}
		r, ok := sink.(coremetrics.CDRRecorder)
		if !ok {
			return
		}
		cdr, ok := e.Request.(model.ChargeDetailRecord)
		if !ok {
			return
		}
		cev := coremetrics.CDREvent{CDR: cdr, Result: e.ResultType, Time: e.Timestamp}
		if res, ok := e.Result.(result.SendCDR); ok {
			cev.Backend = res.Backend
		}
		_ = r.RecordCDR(cev)
	case events.StatusChanged:
		if r, ok := sink.(coremetrics.StatusRecorder); ok {
			_ = r.RecordStatus(coremetrics.StatusEvent{
				Kind:   e.Kind.String(),
				ID:     e.ID,
				Status: e.NewStatus,
				Admin:  e.Admin,
				Time:   e.Timestamp,
			})
		}
	}
}
