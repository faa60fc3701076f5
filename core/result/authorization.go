package result

import (
	"time"

	"github.com/kilianp07/roaming/core/ids"
)

// AuthType enumerates authorization outcomes for both start and stop.
type AuthType int

const (
	AuthUnspecified AuthType = iota
	AuthAuthorized
	AuthNotAuthorized
	AuthBlocked
	AuthInvalidSessionID
	AuthTimeout
	AuthError
)

var authNames = []string{
	"unspecified", "authorized", "not_authorized", "blocked", "invalid_session_id", "timeout", "error",
}

func (t AuthType) String() string { return name(authNames, int(t)) }

func (t AuthType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// AuthStart is the outcome of a start authorization.
type AuthStart struct {
	Type              AuthType              `json:"type"`
	SessionID         ids.SessionID         `json:"session_id,omitempty"`
	ProviderID        ids.ProviderID        `json:"provider_id,omitempty"`
	RoamingProviderID ids.RoamingProviderID `json:"roaming_provider_id,omitempty"`
	Message           string                `json:"message,omitempty"`
	Runtime           time.Duration         `json:"runtime"`
}

// Authorized builds a positive start authorization.
func Authorized(session ids.SessionID, provider ids.ProviderID) AuthStart {
	return AuthStart{Type: AuthAuthorized, SessionID: session, ProviderID: provider}
}

// AuthStartFailed builds a non positive start authorization.
func AuthStartFailed(t AuthType, provider ids.ProviderID, msg string) AuthStart {
	return AuthStart{Type: t, ProviderID: provider, Message: msg}
}

func (r AuthStart) Kind() string { return r.Type.String() }

// AuthStop is the outcome of a stop authorization.
type AuthStop struct {
	Type              AuthType              `json:"type"`
	SessionID         ids.SessionID         `json:"session_id,omitempty"`
	ProviderID        ids.ProviderID        `json:"provider_id,omitempty"`
	RoamingProviderID ids.RoamingProviderID `json:"roaming_provider_id,omitempty"`
	Message           string                `json:"message,omitempty"`
	Runtime           time.Duration         `json:"runtime"`
}

// StopAuthorized builds a positive stop authorization.
func StopAuthorized(session ids.SessionID, provider ids.ProviderID) AuthStop {
	return AuthStop{Type: AuthAuthorized, SessionID: session, ProviderID: provider}
}

// AuthStopFailed builds a non positive stop authorization.
func AuthStopFailed(t AuthType, session ids.SessionID, provider ids.ProviderID, msg string) AuthStop {
	return AuthStop{Type: t, SessionID: session, ProviderID: provider, Message: msg}
}

func (r AuthStop) Kind() string { return r.Type.String() }

// SendCDRType enumerates charge detail record forwarding outcomes.
type SendCDRType int

const (
	CDRUnspecified SendCDRType = iota
	CDRForwarded
	CDRNotForwarded
	CDRInvalidSessionID
	CDRFiltered
	CDRError
)

var cdrNames = []string{"unspecified", "forwarded", "not_forwarded", "invalid_session_id", "filtered", "error"}

func (t SendCDRType) String() string { return name(cdrNames, int(t)) }

func (t SendCDRType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// SendCDR is the outcome of forwarding a charge detail record.
type SendCDR struct {
	Type      SendCDRType   `json:"type"`
	SessionID ids.SessionID `json:"session_id"`
	Backend   string        `json:"backend,omitempty"`
	Message   string        `json:"message,omitempty"`
	Runtime   time.Duration `json:"runtime"`
}

// CDRResult builds a forwarding outcome.
func CDRResult(t SendCDRType, session ids.SessionID, backend, msg string) SendCDR {
	return SendCDR{Type: t, SessionID: session, Backend: backend, Message: msg}
}

func (r SendCDR) Kind() string { return r.Type.String() }
