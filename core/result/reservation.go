package result

import (
	"time"

	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/model"
)

// ReservationType enumerates reservation outcomes.
type ReservationType int

const (
	ReservationUnspecified ReservationType = iota
	ReservationUnknownOperator
	ReservationUnknownEVSE
	ReservationUnknownStation
	ReservationUnknownPool
	ReservationInvalidSessionID
	ReservationAlreadyInUse
	ReservationReserved
	ReservationOutOfService
	ReservationOffline
	ReservationSuccess
	ReservationTimeout
	ReservationError
)

var reservationNames = []string{
	"unspecified", "unknown_evse_operator", "unknown_evse", "unknown_charging_station",
	"unknown_charging_pool", "invalid_session_id", "already_in_use", "reserved",
	"out_of_service", "offline", "success", "timeout", "error",
}

func (t ReservationType) String() string { return name(reservationNames, int(t)) }

func (t ReservationType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Reservation is the outcome of a reserve call.
type Reservation struct {
	Type        ReservationType    `json:"type"`
	Reservation *model.Reservation `json:"reservation,omitempty"`
	Message     string             `json:"message,omitempty"`
	Runtime     time.Duration      `json:"runtime"`
}

// ReservationOK wraps a successful reservation.
func ReservationOK(r model.Reservation) Reservation {
	return Reservation{Type: ReservationSuccess, Reservation: &r}
}

// ReservationFailed builds a non successful outcome.
func ReservationFailed(t ReservationType, msg string) Reservation {
	return Reservation{Type: t, Message: msg}
}

// IsSuccess reports whether the reservation was granted.
func (r Reservation) IsSuccess() bool { return r.Type == ReservationSuccess && r.Reservation != nil }

func (r Reservation) Kind() string { return r.Type.String() }

// CancelReservationType enumerates cancellation outcomes.
type CancelReservationType int

const (
	CancelUnspecified CancelReservationType = iota
	CancelUnknownOperator
	CancelUnknownReservation
	CancelOffline
	CancelSuccess
	CancelTimeout
	CancelError
)

var cancelNames = []string{
	"unspecified", "unknown_evse_operator", "unknown_reservation_id", "offline", "success", "timeout", "error",
}

func (t CancelReservationType) String() string { return name(cancelNames, int(t)) }

func (t CancelReservationType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// CancelReservation is the outcome of a cancellation.
type CancelReservation struct {
	Type          CancelReservationType `json:"type"`
	ReservationID ids.ReservationID     `json:"reservation_id"`
	Reason        model.CancelReason    `json:"reason"`
	Message       string                `json:"message,omitempty"`
	Runtime       time.Duration         `json:"runtime"`
}

// CancelOK reports a successful cancellation.
func CancelOK(id ids.ReservationID, reason model.CancelReason) CancelReservation {
	return CancelReservation{Type: CancelSuccess, ReservationID: id, Reason: reason}
}

// CancelFailed builds a non successful cancellation outcome.
func CancelFailed(t CancelReservationType, id ids.ReservationID, msg string) CancelReservation {
	return CancelReservation{Type: t, ReservationID: id, Message: msg}
}

func (r CancelReservation) IsSuccess() bool { return r.Type == CancelSuccess }

func (r CancelReservation) Kind() string { return r.Type.String() }
