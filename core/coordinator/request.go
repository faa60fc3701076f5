package coordinator

import (
	"errors"
	"time"

	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/model"
)

var (
	// ErrEmptyTarget is returned when a request names no EVSE, station or pool.
	ErrEmptyTarget = errors.New("target identifier is required")
	// ErrEmptySessionID is returned when a stop names no session.
	ErrEmptySessionID = errors.New("session identifier is required")
	// ErrEmptyReservationID is returned when a cancellation names no reservation.
	ErrEmptyReservationID = errors.New("reservation identifier is required")
	// ErrNegativeDuration is returned for reservations with a negative duration.
	ErrNegativeDuration = errors.New("reservation duration must not be negative")
	// ErrSessionExists is returned when registering a session id twice.
	ErrSessionExists = errors.New("session already registered")
)

// Target addresses an EVSE, a charging station or a charging pool.
type Target struct {
	Level model.Level `json:"level"`
	ID    string      `json:"id"`
}

// EVSE targets one EVSE.
func EVSE(id ids.EVSEID) Target { return Target{Level: model.LevelEVSE, ID: string(id)} }

// Station targets a charging station.
func Station(id ids.ChargingStationID) Target {
	return Target{Level: model.LevelChargingStation, ID: string(id)}
}

// Pool targets a charging pool.
func Pool(id ids.ChargingPoolID) Target {
	return Target{Level: model.LevelChargingPool, ID: string(id)}
}

// IsEmpty reports whether no identifier is set.
func (t Target) IsEmpty() bool { return t.ID == "" }

// OperatorID returns the operator embedded in the target identifier.
func (t Target) OperatorID() (ids.OperatorID, bool) { return ids.OperatorOf(t.ID) }

func (t Target) String() string {
	if t.IsEmpty() {
		return ""
	}
	return t.Level.String() + ":" + t.ID
}

// ReserveRequest asks for a reservation. A zero StartTime means now and a zero
// Duration means the maximum reservation duration. ReservationID is only set
// to renew an existing reservation.
type ReserveRequest struct {
	Target          Target              `json:"target"`
	ReservationID   ids.ReservationID   `json:"reservation_id,omitempty"`
	StartTime       time.Time           `json:"start_time,omitempty"`
	Duration        time.Duration       `json:"duration,omitempty"`
	ProviderID      ids.ProviderID      `json:"provider_id,omitempty"`
	AccountID       ids.AccountID       `json:"account_id,omitempty"`
	ProductID       ids.ProductID       `json:"product_id,omitempty"`
	AuthTokens      []ids.AuthToken     `json:"auth_tokens,omitempty"`
	PINs            []string            `json:"pins,omitempty"`
	EventTrackingID ids.EventTrackingID `json:"event_tracking_id,omitempty"`
	Timeout         time.Duration       `json:"timeout,omitempty"`
}

// CancelReservationRequest asks to release a reservation.
type CancelReservationRequest struct {
	ReservationID   ids.ReservationID   `json:"reservation_id"`
	Reason          model.CancelReason  `json:"reason"`
	EventTrackingID ids.EventTrackingID `json:"event_tracking_id,omitempty"`
	Timeout         time.Duration       `json:"timeout,omitempty"`
}

// RemoteStartRequest asks to start a session.
type RemoteStartRequest struct {
	Target          Target              `json:"target"`
	ProductID       ids.ProductID       `json:"product_id,omitempty"`
	ReservationID   ids.ReservationID   `json:"reservation_id,omitempty"`
	SessionID       ids.SessionID       `json:"session_id,omitempty"`
	ProviderID      ids.ProviderID      `json:"provider_id,omitempty"`
	AccountID       ids.AccountID       `json:"account_id,omitempty"`
	AuthToken       ids.AuthToken       `json:"auth_token,omitempty"`
	EventTrackingID ids.EventTrackingID `json:"event_tracking_id,omitempty"`
	Timeout         time.Duration       `json:"timeout,omitempty"`
}

// RemoteStopRequest asks to stop a session. Target is optional; when set it
// is used to find the owner if the session is not registered.
type RemoteStopRequest struct {
	Target          Target                    `json:"target,omitempty"`
	SessionID       ids.SessionID             `json:"session_id"`
	Handling        model.ReservationHandling `json:"reservation_handling"`
	ProviderID      ids.ProviderID            `json:"provider_id,omitempty"`
	AccountID       ids.AccountID             `json:"account_id,omitempty"`
	EventTrackingID ids.EventTrackingID       `json:"event_tracking_id,omitempty"`
	Timeout         time.Duration             `json:"timeout,omitempty"`
}
