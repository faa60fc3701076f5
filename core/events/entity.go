package events

import (
	"time"

	"github.com/kilianp07/roaming/core/model"
)

// DataChanged is raised when a property of an entity changed.
type DataChanged struct {
	Kind      model.EntityKind `json:"kind"`
	ID        string           `json:"id"`
	Property  string           `json:"property"`
	OldValue  any              `json:"old_value"`
	NewValue  any              `json:"new_value"`
	Timestamp time.Time        `json:"timestamp"`
}

// StatusChanged is raised when the status or admin status of an entity
// changed. Aggregate statuses of stations, pools, operators and the network
// are reported the same way.
type StatusChanged struct {
	Kind      model.EntityKind `json:"kind"`
	ID        string           `json:"id"`
	Admin     bool             `json:"admin"`
	OldStatus string           `json:"old_status"`
	NewStatus string           `json:"new_status"`
	Timestamp time.Time        `json:"timestamp"`
}

// EntityAdded is raised after a child was committed to its parent.
type EntityAdded struct {
	Kind     model.EntityKind `json:"kind"`
	ID       string           `json:"id"`
	ParentID string           `json:"parent_id"`
}

// EntityRemoved is raised after a child was removed from its parent.
type EntityRemoved struct {
	Kind     model.EntityKind `json:"kind"`
	ID       string           `json:"id"`
	ParentID string           `json:"parent_id"`
}
