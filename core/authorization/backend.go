// Package authorization dispatches authorization requests and charge detail
// records to local e-mobility providers first and to roaming providers
// second, in priority order.
package authorization

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/kilianp07/roaming/core/coordinator"
	"github.com/kilianp07/roaming/core/ids"
	"github.com/kilianp07/roaming/core/model"
	"github.com/kilianp07/roaming/core/result"
)

var (
	// ErrEmptyAuthToken is returned when an authorization names no token.
	ErrEmptyAuthToken = errors.New("authentication token is required")
	// ErrEmptySessionID is returned when a stop or a CDR names no session.
	ErrEmptySessionID = errors.New("session identifier is required")
)

// StartRequest asks whether a token may start charging. An empty Target is a
// generic request not bound to an EVSE or a station.
type StartRequest struct {
	AuthToken       ids.AuthToken       `json:"auth_token"`
	Target          coordinator.Target  `json:"target,omitempty"`
	OperatorID      ids.OperatorID      `json:"operator_id,omitempty"`
	SessionID       ids.SessionID       `json:"session_id,omitempty"`
	EventTrackingID ids.EventTrackingID `json:"event_tracking_id,omitempty"`
	Timeout         time.Duration       `json:"timeout,omitempty"`
}

// StopRequest asks whether a token may stop a session.
type StopRequest struct {
	AuthToken       ids.AuthToken       `json:"auth_token"`
	SessionID       ids.SessionID       `json:"session_id"`
	Target          coordinator.Target  `json:"target,omitempty"`
	OperatorID      ids.OperatorID      `json:"operator_id,omitempty"`
	EventTrackingID ids.EventTrackingID `json:"event_tracking_id,omitempty"`
	Timeout         time.Duration       `json:"timeout,omitempty"`
}

// Backend is a local e-mobility provider or a roaming provider able to
// authorize tokens and to accept charge detail records.
type Backend interface {
	ID() string
	// Priority orders backends of the same tier, lowest first.
	Priority() int
	AuthorizeStart(ctx context.Context, req StartRequest) (result.AuthStart, error)
	AuthorizeStop(ctx context.Context, req StopRequest) (result.AuthStop, error)
	SendChargeDetailRecord(ctx context.Context, cdr model.ChargeDetailRecord) (result.SendCDR, error)
}

// Sources supplies the two backend tiers. It is queried on every request so
// registrations made at runtime are honored.
type Sources interface {
	LocalBackends() []Backend
	RoamingBackends() []Backend
}

// StaticSources is a fixed pair of tiers.
type StaticSources struct {
	Local   []Backend
	Roaming []Backend
}

func (s StaticSources) LocalBackends() []Backend   { return s.Local }
func (s StaticSources) RoamingBackends() []Backend { return s.Roaming }

// SortBackends orders backends by ascending priority, ties broken by id.
func SortBackends(in []Backend) []Backend {
	out := slices.Clone(in)
	slices.SortStableFunc(out, func(a, b Backend) int {
		if c := cmp.Compare(a.Priority(), b.Priority()); c != 0 {
			return c
		}
		return cmp.Compare(a.ID(), b.ID())
	})
	return out
}
