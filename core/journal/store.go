// Package journal persists the completed coordinator and authorization
// operations so they can be audited later.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kilianp07/roaming/core/events"
	"github.com/kilianp07/roaming/core/ids"
)

// Record captures one completed operation.
type Record struct {
	Timestamp       time.Time           `json:"timestamp"`
	Operation       events.Operation    `json:"operation"`
	Level           string              `json:"level"`
	Node            string              `json:"node"`
	EventTrackingID ids.EventTrackingID `json:"event_tracking_id"`
	Target          string              `json:"target,omitempty"`
	ResultType      string              `json:"result_type"`
	RuntimeMS       float64             `json:"runtime_ms"`
	Request         json.RawMessage     `json:"request,omitempty"`
	Result          json.RawMessage     `json:"result,omitempty"`
}

// FromCompleted converts a completion event into a record.
func FromCompleted(ev events.Completed) (Record, error) {
	req, err := json.Marshal(ev.Request)
	if err != nil {
		return Record{}, fmt.Errorf("marshal request: %w", err)
	}
	res, err := json.Marshal(ev.Result)
	if err != nil {
		return Record{}, fmt.Errorf("marshal result: %w", err)
	}
	return Record{
		Timestamp:       ev.Timestamp,
		Operation:       ev.Operation,
		Level:           ev.Level,
		Node:            ev.Node,
		EventTrackingID: ev.EventTrackingID,
		Target:          ev.Target,
		ResultType:      ev.ResultType,
		RuntimeMS:       float64(ev.Runtime) / float64(time.Millisecond),
		Request:         req,
		Result:          res,
	}, nil
}

// Query defines filters for retrieving records. Zero values match anything.
type Query struct {
	Start      time.Time
	End        time.Time
	Operation  events.Operation
	Level      string
	Target     string
	ResultType string
	Limit      int
}

// Matches reports whether r passes every filter of q.
func (q Query) Matches(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Operation != "" && r.Operation != q.Operation {
		return false
	}
	if q.Level != "" && r.Level != q.Level {
		return false
	}
	if q.Target != "" && r.Target != q.Target {
		return false
	}
	if q.ResultType != "" && r.ResultType != q.ResultType {
		return false
	}
	return true
}

// Store persists records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

func limit(recs []Record, n int) []Record {
	if n > 0 && len(recs) > n {
		return recs[len(recs)-n:]
	}
	return recs
}
