package events

import (
	"time"

	"github.com/kilianp07/roaming/core/ids"
)

// Operation names a coordinated operation.
type Operation string

const (
	OpReserve           Operation = "reserve"
	OpCancelReservation Operation = "cancel_reservation"
	OpRemoteStart       Operation = "remote_start"
	OpRemoteStop        Operation = "remote_stop"
	OpAuthorizeStart    Operation = "authorize_start"
	OpAuthorizeStop     Operation = "authorize_stop"
	OpSendCDR           Operation = "send_cdr"
)

// Requested is raised before an operation is dispatched.
type Requested struct {
	Operation       Operation           `json:"operation"`
	Level           string              `json:"level"`
	Node            string              `json:"node"`
	Timestamp       time.Time           `json:"timestamp"`
	EventTrackingID ids.EventTrackingID `json:"event_tracking_id"`
	Target          string              `json:"target,omitempty"`
	Request         any                 `json:"request"`
}

// Completed is raised after an operation finished, successful or not.
type Completed struct {
	Operation       Operation           `json:"operation"`
	Level           string              `json:"level"`
	Node            string              `json:"node"`
	Timestamp       time.Time           `json:"timestamp"`
	EventTrackingID ids.EventTrackingID `json:"event_tracking_id"`
	Target          string              `json:"target,omitempty"`
	Request         any                 `json:"request"`
	ResultType      string              `json:"result_type"`
	Result          any                 `json:"result"`
	Runtime         time.Duration       `json:"runtime"`
}
