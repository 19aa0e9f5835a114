package models

import (
	"time"

	"github.com/google/uuid"
)

type ConflictType string

const (
	// ConflictConcurrentUpdate means both sides modified overlapping fields.
	ConflictConcurrentUpdate ConflictType = "concurrent_update"
	// ConflictDeleteUpdate means one side deleted the entity while the other updated it.
	ConflictDeleteUpdate ConflictType = "delete_update"
	// ConflictCreateCreate means both sides independently created what is meant
	// to be the same record, matched through its natural key.
	ConflictCreateCreate ConflictType = "create_create"
)

// SyncConflict records an incompatibility between a local operation and the
// remote state of the same entity. It exists until a resolution is applied.
type SyncConflict struct {
	ID         uuid.UUID    `json:"id"`
	EntityType string       `json:"entity_type"`
	EntityID   string       `json:"entity_id"`
	Type       ConflictType `json:"conflict_type"`
	// RemoteEntityID is the identifier the remote side knows the entity by.
	// For create_create conflicts it differs from EntityID: the remote created
	// its record under its own identifier, matched through the natural key.
	RemoteEntityID  string         `json:"remote_entity_id,omitempty"`
	OperationID     uuid.UUID      `json:"operation_id"`
	BaseSnapshot    map[string]any `json:"base_snapshot,omitempty"`
	LocalSnapshot   map[string]any `json:"local_snapshot,omitempty"`
	LocalSnapshotAt time.Time      `json:"local_snapshot_at"`
	RemoteSnapshot  map[string]any `json:"remote_snapshot,omitempty"`
	RemoteUpdatedAt time.Time      `json:"remote_updated_at"`
	DetectedAt      time.Time      `json:"detected_at"`

	Resolution    *Resolution    `json:"resolution,omitempty"`
	ResolvedState map[string]any `json:"resolved_state,omitempty"`
	ResolvedAt    *time.Time     `json:"resolved_at,omitempty"`
}

func (c *SyncConflict) IsResolved() bool {
	return c.ResolvedAt != nil
}

// LocalDeleted reports whether the local side of the conflict is a deletion.
func (c *SyncConflict) LocalDeleted() bool {
	return c.LocalSnapshot == nil
}

// RemoteDeleted reports whether the remote side of the conflict is a deletion.
func (c *SyncConflict) RemoteDeleted() bool {
	return c.RemoteSnapshot == nil
}
