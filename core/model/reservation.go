package model

import (
	"time"

	"github.com/kilianp07/roaming/core/ids"
)

// Reservation is a time bounded hold on an EVSE, a station or a pool.
type Reservation struct {
	ID         ids.ReservationID     `json:"id"`
	Level      Level                 `json:"level"`
	OperatorID ids.OperatorID        `json:"operator_id"`
	PoolID     ids.ChargingPoolID    `json:"pool_id,omitempty"`
	StationID  ids.ChargingStationID `json:"station_id,omitempty"`
	EVSEID     ids.EVSEID            `json:"evse_id,omitempty"`
	StartTime  time.Time             `json:"start_time"`
	Duration   time.Duration         `json:"duration"`
	ProviderID ids.ProviderID        `json:"provider_id,omitempty"`
	AccountID  ids.AccountID         `json:"account_id,omitempty"`
	ProductID  ids.ProductID         `json:"product_id,omitempty"`
	AuthTokens []ids.AuthToken       `json:"auth_tokens,omitempty"`
	PINs       []string              `json:"pins,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
}

// EndTime returns the instant the reservation ends.
func (r Reservation) EndTime() time.Time { return r.StartTime.Add(r.Duration) }

// IsExpired reports whether the reservation ended before now.
func (r Reservation) IsExpired(now time.Time) bool { return !now.Before(r.EndTime()) }

// Allows reports whether the token may use the reservation. An empty token
// list accepts any token.
func (r Reservation) Allows(token ids.AuthToken) bool {
	if len(r.AuthTokens) == 0 {
		return true
	}
	for _, t := range r.AuthTokens {
		if t == token {
			return true
		}
	}
	return false
}

// CancelReason explains why a reservation was cancelled.
type CancelReason int

const (
	CancelDeleted CancelReason = iota
	CancelAborted
	CancelExpired
)

func (r CancelReason) String() string {
	switch r {
	case CancelDeleted:
		return "deleted"
	case CancelAborted:
		return "aborted"
	case CancelExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// ReservationHandling tells the EVSE what to do with the reservation bound to
// a session when the session stops.
type ReservationHandling int

const (
	ReservationClose ReservationHandling = iota
	ReservationKeepAlive
)

func (h ReservationHandling) String() string {
	if h == ReservationKeepAlive {
		return "keep_alive"
	}
	return "close"
}
