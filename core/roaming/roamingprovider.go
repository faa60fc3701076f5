package roaming

import (
	"context"
	"fmt"

	"github.com/kilianp07/roaming/core/authorization"
	"github.com/kilianp07/roaming/core/events"
)

// Role tells which side of the roaming protocol an adapter serves.
type Role int

const (
	// RoleCPO adapters publish infrastructure data and ask the hub to
	// authorize foreign customers.
	RoleCPO Role = iota
	// RoleEMP adapters receive reservations and remote sessions from the hub.
	RoleEMP
)

func (r Role) String() string {
	if r == RoleEMP {
		return "emp"
	}
	return "cpo"
}

// ParseRole converts a configured role name.
func ParseRole(s string) (Role, error) {
	switch s {
	case "cpo", "":
		return RoleCPO, nil
	case "emp":
		return RoleEMP, nil
	default:
		return RoleCPO, fmt.Errorf("unknown roaming provider role %q", s)
	}
}

// RoamingProvider is an adapter to an external roaming hub.
type RoamingProvider interface {
	authorization.Backend
	Role() Role
	// EnqueueDataChange hands an infrastructure data change to the adapter.
	EnqueueDataChange(ctx context.Context, ev events.DataChanged) error
	// EnqueueStatusChange hands a status change to the adapter.
	EnqueueStatusChange(ctx context.Context, ev events.StatusChanged) error
}
