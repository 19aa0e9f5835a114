package models

import (
	"reflect"
	"time"

	"github.com/google/uuid"
)

type OperationKind string

const (
	OpCreate OperationKind = "create"
	OpUpdate OperationKind = "update"
	OpDelete OperationKind = "delete"
)

type OperationStatus string

const (
	StatusPending   OperationStatus = "pending"
	StatusSyncing   OperationStatus = "syncing"
	StatusCompleted OperationStatus = "completed"
	StatusFailed    OperationStatus = "failed"
)

// SyncOperation is one local mutation waiting to be confirmed against the
// remote system of record. Base and Payload are captured at mutation time
// and never change after the operation is appended.
type SyncOperation struct {
	ID            uuid.UUID       `json:"id"`
	Kind          OperationKind   `json:"operation"`
	EntityType    string          `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	Base          map[string]any  `json:"base,omitempty"`
	Payload       map[string]any  `json:"payload,omitempty"`
	SnapshotAt    time.Time       `json:"snapshot_at"`
	Status        OperationStatus `json:"status"`
	FailureReason *string         `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ChangedFields returns the fields the local mutation touched: keys whose
// value in Payload differs from Base, plus keys present on only one side.
// For creates (no base) every payload field counts as changed; for deletes
// (no payload) every base field does.
func (op *SyncOperation) ChangedFields() []string {
	switch op.Kind {
	case OpCreate:
		return mapKeys(op.Payload)
	case OpDelete:
		return mapKeys(op.Base)
	}

	var changed []string
	for key, after := range op.Payload {
		before, ok := op.Base[key]
		if !ok || !valuesEqual(before, after) {
			changed = append(changed, key)
		}
	}
	for key := range op.Base {
		if _, ok := op.Payload[key]; !ok {
			changed = append(changed, key)
		}
	}
	return changed
}

// valuesEqual compares two JSON-decoded values. Payloads round-trip through
// JSON columns, so nested values are maps, slices and scalars only.
func valuesEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

func mapKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
