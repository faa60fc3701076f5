package result

import (
	"time"

	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/model"
)

// RemoteStartType enumerates remote start outcomes.
type RemoteStartType int

const (
	StartUnspecified RemoteStartType = iota
	StartUnknownOperator
	StartUnknownEVSE
	StartUnknownStation
	StartUnknownPool
	StartInvalidSessionID
	StartAlreadyInUse
	StartReserved
	StartOutOfService
	StartOffline
	StartSuccess
	StartTimeout
	StartError
)

var startNames = []string{
	"unspecified", "unknown_evse_operator", "unknown_evse", "unknown_charging_station",
	"unknown_charging_pool", "invalid_session_id", "already_in_use", "reserved",
	"out_of_service", "offline", "success", "timeout", "error",
}

func (t RemoteStartType) String() string { return name(startNames, int(t)) }

func (t RemoteStartType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// RemoteStart is the outcome of a remote start.
type RemoteStart struct {
	Type    RemoteStartType        `json:"type"`
	Session *model.ChargingSession `json:"session,omitempty"`
	Message string                 `json:"message,omitempty"`
	Runtime time.Duration          `json:"runtime"`
}

// StartOK wraps a started session.
func StartOK(s model.ChargingSession) RemoteStart {
	return RemoteStart{Type: StartSuccess, Session: &s}
}

// StartFailed builds a non successful start outcome.
func StartFailed(t RemoteStartType, msg string) RemoteStart {
	return RemoteStart{Type: t, Message: msg}
}

func (r RemoteStart) IsSuccess() bool { return r.Type == StartSuccess && r.Session != nil }

func (r RemoteStart) Kind() string { return r.Type.String() }

// RemoteStopType enumerates remote stop outcomes.
type RemoteStopType int

const (
	StopUnspecified RemoteStopType = iota
	StopUnknownOperator
	StopUnknownEVSE
	StopInvalidSessionID
	StopOutOfService
	StopOffline
	StopSuccess
	StopTimeout
	StopError
)

var stopNames = []string{
	"unspecified", "unknown_evse_operator", "unknown_evse", "invalid_session_id",
	"out_of_service", "offline", "success", "timeout", "error",
}

func (t RemoteStopType) String() string { return name(stopNames, int(t)) }

func (t RemoteStopType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// RemoteStop is the outcome of a remote stop.
type RemoteStop struct {
	Type      RemoteStopType            `json:"type"`
	SessionID ids.SessionID             `json:"session_id"`
	Handling  model.ReservationHandling `json:"reservation_handling"`
	Session   *model.ChargingSession    `json:"session,omitempty"`
	CDR       *model.ChargeDetailRecord `json:"cdr,omitempty"`
	Message   string                    `json:"message,omitempty"`
	Runtime   time.Duration             `json:"runtime"`
}

// StopOK reports a stopped session with its charge detail record.
func StopOK(s model.ChargingSession, cdr *model.ChargeDetailRecord, h model.ReservationHandling) RemoteStop {
	return RemoteStop{Type: StopSuccess, SessionID: s.ID, Session: &s, CDR: cdr, Handling: h}
}

// StopFailed builds a non successful stop outcome.
func StopFailed(t RemoteStopType, id ids.SessionID, msg string) RemoteStop {
	return RemoteStop{Type: t, SessionID: id, Message: msg}
}

func (r RemoteStop) IsSuccess() bool { return r.Type == StopSuccess }

func (r RemoteStop) Kind() string { return r.Type.String() }
