package sync

import (
	"testing"
	"time"

	"github.com/MarketingLimited/nexus-hr-sub006/internal/models"
	"github.com/MarketingLimited/nexus-hr-sub006/internal/remote"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var detectorBase = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func updateOp(entityID string, base, payload map[string]any, snapshotAt time.Time) *models.SyncOperation {
	return &models.SyncOperation{
		ID:         uuid.New(),
		Kind:       models.OpUpdate,
		EntityType: "employee",
		EntityID:   entityID,
		Base:       base,
		Payload:    payload,
		SnapshotAt: snapshotAt,
	}
}

func remoteAt(data map[string]any, updatedAt time.Time) *remote.EntityState {
	return &remote.EntityState{Exists: true, Data: data, UpdatedAt: updatedAt}
}

func TestDetector_Update_OlderRemoteIsSafe(t *testing.T) {
	detector := NewDetector()

	op := updateOp("emp-1",
		map[string]any{"salary": 50000.0},
		map[string]any{"salary": 55000.0},
		detectorBase,
	)
	state := remoteAt(map[string]any{"salary": 50000.0}, detectorBase.Add(-time.Hour))

	assert.Nil(t, detector.Detect(op, state))
}

func TestDetector_Update_NonOverlappingFieldsDoNotConflict(t *testing.T) {
	detector := NewDetector()

	// Local changed salary at T1; remote changed department at T2 > T1.
	// Field-level check: disjoint field sets are compatible.
	op := updateOp("emp-2",
		map[string]any{"salary": 50000.0, "department": "Sales"},
		map[string]any{"salary": 60000.0, "department": "Sales"},
		detectorBase,
	)
	state := remoteAt(
		map[string]any{"salary": 50000.0, "department": "Marketing"},
		detectorBase.Add(10*time.Minute),
	)

	assert.Nil(t, detector.Detect(op, state))
}

func TestDetector_Update_OverlappingFieldsConflict(t *testing.T) {
	detector := NewDetector()

	op := updateOp("emp-2",
		map[string]any{"salary": 50000.0},
		map[string]any{"salary": 60000.0},
		detectorBase,
	)
	state := remoteAt(map[string]any{"salary": 70000.0}, detectorBase.Add(10*time.Minute))

	conflict := detector.Detect(op, state)
	require.NotNil(t, conflict)
	assert.Equal(t, models.ConflictConcurrentUpdate, conflict.Type)
	assert.Equal(t, "emp-2", conflict.EntityID)
	assert.Equal(t, op.ID, conflict.OperationID)
	assert.Equal(t, op.Payload, conflict.LocalSnapshot)
	assert.Equal(t, state.Data, conflict.RemoteSnapshot)
}

func TestDetector_Update_RemoteDeletedConflicts(t *testing.T) {
	detector := NewDetector()

	op := updateOp("emp-3",
		map[string]any{"salary": 50000.0},
		map[string]any{"salary": 60000.0},
		detectorBase,
	)

	conflict := detector.Detect(op, &remote.EntityState{Exists: false})
	require.NotNil(t, conflict)
	assert.Equal(t, models.ConflictDeleteUpdate, conflict.Type)
	assert.True(t, conflict.RemoteDeleted())
}

func TestDetector_Delete_RemoteUpdateConflicts(t *testing.T) {
	detector := NewDetector()

	op := &models.SyncOperation{
		ID:         uuid.New(),
		Kind:       models.OpDelete,
		EntityType: "employee",
		EntityID:   "emp-3",
		Base:       map[string]any{"salary": 50000.0},
		SnapshotAt: detectorBase,
	}
	state := remoteAt(map[string]any{"salary": 65000.0}, detectorBase.Add(time.Minute))

	conflict := detector.Detect(op, state)
	require.NotNil(t, conflict)
	assert.Equal(t, models.ConflictDeleteUpdate, conflict.Type)
	assert.True(t, conflict.LocalDeleted())
	assert.Equal(t, state.Data, conflict.RemoteSnapshot)
}

func TestDetector_Delete_UnchangedRemoteIsSafe(t *testing.T) {
	detector := NewDetector()

	op := &models.SyncOperation{
		ID:         uuid.New(),
		Kind:       models.OpDelete,
		EntityType: "employee",
		EntityID:   "emp-3",
		Base:       map[string]any{"salary": 50000.0},
		SnapshotAt: detectorBase,
	}

	// Timestamp advanced but content matches the snapshot base.
	state := remoteAt(map[string]any{"salary": 50000.0}, detectorBase.Add(time.Minute))
	assert.Nil(t, detector.Detect(op, state))

	// Already deleted remotely: nothing to conflict with.
	assert.Nil(t, detector.Detect(op, &remote.EntityState{Exists: false}))
}

func TestDetector_Create_DuplicateNaturalKeyConflicts(t *testing.T) {
	detector := NewDetector()

	op := &models.SyncOperation{
		ID:         uuid.New(),
		Kind:       models.OpCreate,
		EntityType: "employee",
		EntityID:   "emp-9",
		Payload:    map[string]any{"email": "jo@example.com", "department": "Sales"},
		SnapshotAt: detectorBase,
	}
	state := remoteAt(map[string]any{"email": "jo@example.com", "department": "HR"}, detectorBase.Add(-time.Hour))

	conflict := detector.Detect(op, state)
	require.NotNil(t, conflict)
	assert.Equal(t, models.ConflictCreateCreate, conflict.Type)
}

func TestDetector_Create_NoRemoteMatchIsSafe(t *testing.T) {
	detector := NewDetector()

	op := &models.SyncOperation{
		ID:         uuid.New(),
		Kind:       models.OpCreate,
		EntityType: "employee",
		EntityID:   "emp-9",
		Payload:    map[string]any{"email": "jo@example.com"},
		SnapshotAt: detectorBase,
	}

	assert.Nil(t, detector.Detect(op, &remote.EntityState{Exists: false}))
}
