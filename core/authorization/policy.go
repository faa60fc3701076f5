package authorization

import (
	"fmt"

	"github.com/kilianp07/roaming/core/result"
)

// Policy decides which backend answer ends a scan.
type Policy int

const (
	// StopOnAuthorizedOrBlocked ends the scan on the first authorized or
	// blocked answer. A block is final.
	StopOnAuthorizedOrBlocked Policy = iota
	// StopOnAuthorized ends the scan on the first authorized answer only.
	StopOnAuthorized
)

func (p Policy) String() string {
	switch p {
	case StopOnAuthorizedOrBlocked:
		return "stop_on_authorized_or_blocked"
	case StopOnAuthorized:
		return "stop_on_authorized"
	default:
		return "unknown"
	}
}

// ParsePolicy resolves a configured policy name. The empty name yields def.
func ParsePolicy(name string, def Policy) (Policy, error) {
	switch name {
	case "":
		return def, nil
	case "stop_on_authorized_or_blocked":
		return StopOnAuthorizedOrBlocked, nil
	case "stop_on_authorized":
		return StopOnAuthorized, nil
	default:
		return def, fmt.Errorf("unknown authorization policy %q", name)
	}
}

func (p Policy) stops(t result.AuthType) bool {
	switch t {
	case result.AuthAuthorized:
		return true
	case result.AuthBlocked:
		return p == StopOnAuthorizedOrBlocked
	default:
		return false
	}
}
