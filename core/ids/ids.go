// Package ids defines the identifier types used across the roaming network.
//
// Charging pool, charging station and EVSE identifiers embed the identifier of
// their operator as the first two '*' separated segments, e.g. "DE*ABC*E1"
// belongs to operator "DE*ABC". Requests carrying only a child identifier can
// therefore be routed to the right operator without a lookup table.
package ids

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrEmptyID is returned when parsing an empty identifier.
	ErrEmptyID = errors.New("empty identifier")
	// ErrMalformedID is returned when an identifier does not follow the
	// expected segment layout.
	ErrMalformedID = errors.New("malformed identifier")
)

const separator = "*"

type (
	OperatorID        string
	ChargingPoolID    string
	ChargingStationID string
	EVSEID            string
	ProviderID        string
	RoamingProviderID string
	SessionID         string
	ReservationID     string
	EventTrackingID   string
	AuthToken         string
	AccountID         string
	ProductID         string
)

// ParseOperatorID validates an operator identifier such as "DE*ABC".
func ParseOperatorID(s string) (OperatorID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyID
	}
	parts := strings.Split(s, separator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("%w: operator id %q", ErrMalformedID, s)
	}
	return OperatorID(s), nil
}

// ParseEVSEID validates an EVSE identifier such as "DE*ABC*E1".
func ParseEVSEID(s string) (EVSEID, error) {
	v, err := parseChild(s, "evse")
	return EVSEID(v), err
}

// ParseChargingStationID validates a charging station identifier.
func ParseChargingStationID(s string) (ChargingStationID, error) {
	v, err := parseChild(s, "charging station")
	return ChargingStationID(v), err
}

// ParseChargingPoolID validates a charging pool identifier.
func ParseChargingPoolID(s string) (ChargingPoolID, error) {
	v, err := parseChild(s, "charging pool")
	return ChargingPoolID(v), err
}

func parseChild(s, kind string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyID
	}
	if _, ok := OperatorOf(s); !ok {
		return "", fmt.Errorf("%w: %s id %q", ErrMalformedID, kind, s)
	}
	return s, nil
}

// OperatorOf extracts the operator identifier embedded in a child identifier.
func OperatorOf(s string) (OperatorID, bool) {
	parts := strings.SplitN(s, separator, 3)
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", false
	}
	return OperatorID(parts[0] + separator + parts[1]), true
}

// NewSessionID returns a globally unique session identifier.
func NewSessionID() SessionID { return SessionID(uuid.NewString()) }

// NewReservationID returns a globally unique reservation identifier.
func NewReservationID() ReservationID { return ReservationID(uuid.NewString()) }

// NewEventTrackingID returns a globally unique correlation identifier.
func NewEventTrackingID() EventTrackingID { return EventTrackingID(uuid.NewString()) }

func (id OperatorID) String() string        { return string(id) }
func (id ChargingPoolID) String() string    { return string(id) }
func (id ChargingStationID) String() string { return string(id) }
func (id EVSEID) String() string            { return string(id) }
func (id ProviderID) String() string        { return string(id) }
func (id RoamingProviderID) String() string { return string(id) }
func (id SessionID) String() string         { return string(id) }
func (id ReservationID) String() string     { return string(id) }
func (id EventTrackingID) String() string   { return string(id) }

// OperatorID returns the operator embedded in the pool identifier.
func (id ChargingPoolID) OperatorID() (OperatorID, bool) { return OperatorOf(string(id)) }

// OperatorID returns the operator embedded in the station identifier.
func (id ChargingStationID) OperatorID() (OperatorID, bool) { return OperatorOf(string(id)) }

// OperatorID returns the operator embedded in the EVSE identifier.
func (id EVSEID) OperatorID() (OperatorID, bool) { return OperatorOf(string(id)) }

func (id SessionID) IsEmpty() bool       { return id == "" }
func (id ReservationID) IsEmpty() bool   { return id == "" }
func (id EventTrackingID) IsEmpty() bool { return id == "" }
