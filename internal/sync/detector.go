package sync

import (
	"reflect"
	"time"

	"github.com/MarketingLimited/nexus-hr-sub006/internal/models"
	"github.com/MarketingLimited/nexus-hr-sub006/internal/remote"
)

// NaturalKeys maps an entity type to the payload field that identifies the
// same logical record across systems, used to detect duplicate creates.
var NaturalKeys = map[string]string{
	"employee": "email",
}

// Detector decides whether a local operation is compatible with the remote
// state of the same entity. It is a pure function of its inputs: no I/O, no
// side effects.
type Detector struct{}

func NewDetector() *Detector {
	return &Detector{}
}

// Detect returns a conflict if the operation cannot be applied safely, or
// nil when the local change is compatible with the remote state.
//
// A remote entity counts as concurrently modified when its update marker is
// newer than the timestamp captured in the operation's snapshot. Concurrent
// modification alone is not a conflict for updates: the changed field sets
// must also overlap.
func (d *Detector) Detect(op *models.SyncOperation, remoteState *remote.EntityState) *models.SyncConflict {
	switch op.Kind {
	case models.OpCreate:
		return d.detectCreate(op, remoteState)
	case models.OpDelete:
		return d.detectDelete(op, remoteState)
	default:
		return d.detectUpdate(op, remoteState)
	}
}

func (d *Detector) detectCreate(op *models.SyncOperation, remoteState *remote.EntityState) *models.SyncConflict {
	// The orchestrator resolves creates through the natural key; an existing
	// remote record means both sides created the same logical entity.
	if remoteState == nil || !remoteState.Exists {
		return nil
	}
	return newConflict(op, remoteState, models.ConflictCreateCreate)
}

func (d *Detector) detectDelete(op *models.SyncOperation, remoteState *remote.EntityState) *models.SyncConflict {
	if remoteState == nil || !remoteState.Exists {
		// Already gone remotely; the delete is a no-op, not a conflict.
		return nil
	}
	if !remoteState.UpdatedAt.After(op.SnapshotAt) {
		return nil
	}
	// The update marker alone can trail writes from earlier in the same
	// cycle; only an actual content divergence from the snapshot base is a
	// remote update.
	if len(diffFields(op.Base, remoteState.Data)) == 0 {
		return nil
	}
	return newConflict(op, remoteState, models.ConflictDeleteUpdate)
}

func (d *Detector) detectUpdate(op *models.SyncOperation, remoteState *remote.EntityState) *models.SyncConflict {
	if remoteState == nil || !remoteState.Exists {
		// Remote deleted what we are updating.
		return newConflict(op, remoteState, models.ConflictDeleteUpdate)
	}
	if !remoteState.UpdatedAt.After(op.SnapshotAt) {
		return nil
	}

	// Both sides changed the entity; conflict only if the field sets overlap.
	localChanged := op.ChangedFields()
	remoteChanged := diffFields(op.Base, remoteState.Data)
	if !fieldsOverlap(localChanged, remoteChanged) {
		return nil
	}
	return newConflict(op, remoteState, models.ConflictConcurrentUpdate)
}

func newConflict(op *models.SyncOperation, remoteState *remote.EntityState, kind models.ConflictType) *models.SyncConflict {
	conflict := &models.SyncConflict{
		EntityType:      op.EntityType,
		EntityID:        op.EntityID,
		Type:            kind,
		OperationID:     op.ID,
		BaseSnapshot:    op.Base,
		LocalSnapshot:   op.Payload,
		LocalSnapshotAt: op.SnapshotAt,
		DetectedAt:      time.Now().UTC(),
	}
	if remoteState != nil && remoteState.Exists {
		conflict.RemoteEntityID = remoteState.EntityID
		conflict.RemoteSnapshot = remoteState.Data
		conflict.RemoteUpdatedAt = remoteState.UpdatedAt
	}
	return conflict
}

// diffFields returns the fields whose values differ between two snapshots,
// including fields present on only one side.
func diffFields(before, after map[string]any) []string {
	var changed []string
	for key, afterValue := range after {
		beforeValue, ok := before[key]
		if !ok || !snapshotValuesEqual(beforeValue, afterValue) {
			changed = append(changed, key)
		}
	}
	for key := range before {
		if _, ok := after[key]; !ok {
			changed = append(changed, key)
		}
	}
	return changed
}

// snapshotValuesEqual compares JSON-decoded snapshot values.
func snapshotValuesEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

func fieldsOverlap(a, b []string) bool {
	set := toFieldSet(a)
	for _, field := range b {
		if _, ok := set[field]; ok {
			return true
		}
	}
	return false
}
