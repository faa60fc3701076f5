package metrics

import (
	"time"

	"github.com/kilianp07/roaming/core/model"
)

// OperationEvent is one completed coordinator or authorization operation.
type OperationEvent struct {
	Operation string
	Level     string
	Node      string
	Target    string
	Result    string
	Runtime   time.Duration
	Time      time.Time
}

// MetricsSink records completed operations for observability purposes.
type MetricsSink interface {
	RecordOperation(ev OperationEvent) error
}

// CDREvent is a charge detail record together with its forwarding outcome.
type CDREvent struct {
	CDR     model.ChargeDetailRecord
	Result  string
	Backend string
	Time    time.Time
}

// CDRRecorder records forwarded charge detail records.
type CDRRecorder interface {
	RecordCDR(ev CDREvent) error
}

// StatusEvent is a status change of an infrastructure entity.
type StatusEvent struct {
	Kind   string
	ID     string
	Status string
	Admin  bool
	Time   time.Time
}

// StatusRecorder records status changes.
type StatusRecorder interface {
	RecordStatus(ev StatusEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordOperation(OperationEvent) error { return nil }
func (NopSink) RecordCDR(CDREvent) error             { return nil }
func (NopSink) RecordStatus(StatusEvent) error       { return nil }
