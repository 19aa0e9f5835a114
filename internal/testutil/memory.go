// Package testutil provides in-memory implementations of the sync
// subsystem's dependencies for tests that do not need real backends.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MarketingLimited/nexus-hr-sub006/internal/models"
	"github.com/MarketingLimited/nexus-hr-sub006/internal/remote"
	"github.com/MarketingLimited/nexus-hr-sub006/internal/repositories"
	"github.com/google/uuid"
)

// MemoryOperationLog is an in-memory OperationRepository preserving append
// order, mirroring the Postgres implementation's drain semantics.
type MemoryOperationLog struct {
	mu  sync.Mutex
	ops []*models.SyncOperation
}

func NewMemoryOperationLog() *MemoryOperationLog {
	return &MemoryOperationLog{}
}

func (l *MemoryOperationLog) Append(ctx context.Context, op *models.SyncOperation) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored := *op
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.Status = models.StatusPending
	l.ops = append(l.ops, &stored)

	op.ID = stored.ID
	op.Status = stored.Status
	op.CreatedAt = stored.CreatedAt
	return nil
}

func (l *MemoryOperationLog) GetByID(ctx context.Context, id uuid.UUID) (*models.SyncOperation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, op := range l.ops {
		if op.ID == id {
			copied := *op
			return &copied, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (l *MemoryOperationLog) Drain(ctx context.Context, batchSize int) ([]*models.SyncOperation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var drained []*models.SyncOperation
	for _, op := range l.ops {
		if len(drained) == batchSize {
			break
		}
		if op.Status == models.StatusPending {
			op.Status = models.StatusSyncing
			copied := *op
			drained = append(drained, &copied)
		}
	}
	return drained, nil
}

func (l *MemoryOperationLog) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	return l.setStatus(id, models.StatusCompleted, nil)
}

func (l *MemoryOperationLog) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return l.setStatus(id, models.StatusFailed, &reason)
}

func (l *MemoryOperationLog) MarkPending(ctx context.Context, id uuid.UUID) error {
	return l.setStatus(id, models.StatusPending, nil)
}

func (l *MemoryOperationLog) setStatus(id uuid.UUID, status models.OperationStatus, reason *string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, op := range l.ops {
		if op.ID == id {
			op.Status = status
			op.FailureReason = reason
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (l *MemoryOperationLog) List(ctx context.Context, limit int) ([]*models.SyncOperation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var listed []*models.SyncOperation
	for _, op := range l.ops {
		if len(listed) == limit {
			break
		}
		copied := *op
		listed = append(listed, &copied)
	}
	return listed, nil
}

func (l *MemoryOperationLog) CountPending(ctx context.Context) (int64, error) {
	return l.count(models.StatusPending, models.StatusSyncing), nil
}

func (l *MemoryOperationLog) CountFailed(ctx context.Context) (int64, error) {
	return l.count(models.StatusFailed), nil
}

func (l *MemoryOperationLog) count(statuses ...models.OperationStatus) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var count int64
	for _, op := range l.ops {
		for _, status := range statuses {
			if op.Status == status {
				count++
				break
			}
		}
	}
	return count
}

// MemoryConflictStore is an in-memory ConflictRepository.
type MemoryConflictStore struct {
	mu        sync.Mutex
	conflicts []*models.SyncConflict
}

func NewMemoryConflictStore() *MemoryConflictStore {
	return &MemoryConflictStore{}
}

func (s *MemoryConflictStore) Create(ctx context.Context, conflict *models.SyncConflict) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *conflict
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.DetectedAt.IsZero() {
		stored.DetectedAt = time.Now().UTC()
	}
	s.conflicts = append(s.conflicts, &stored)

	conflict.ID = stored.ID
	conflict.DetectedAt = stored.DetectedAt
	return nil
}

func (s *MemoryConflictStore) GetByID(ctx context.Context, id uuid.UUID) (*models.SyncConflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, conflict := range s.conflicts {
		if conflict.ID == id {
			copied := *conflict
			return &copied, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (s *MemoryConflictStore) ListOpen(ctx context.Context) ([]*models.SyncConflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var open []*models.SyncConflict
	for _, conflict := range s.conflicts {
		if !conflict.IsResolved() {
			copied := *conflict
			open = append(open, &copied)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].DetectedAt.Before(open[j].DetectedAt) })
	return open, nil
}

func (s *MemoryConflictStore) CountOpen(ctx context.Context) (int64, error) {
	open, _ := s.ListOpen(ctx)
	return int64(len(open)), nil
}

func (s *MemoryConflictStore) MarkResolved(ctx context.Context, id uuid.UUID, resolution models.Resolution, resolvedState map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, conflict := range s.conflicts {
		if conflict.ID == id {
			if conflict.IsResolved() {
				return repositories.ErrConflictClosed
			}
			now := time.Now().UTC()
			conflict.Resolution = &resolution
			conflict.ResolvedState = resolvedState
			conflict.ResolvedAt = &now
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (s *MemoryConflictStore) Reopen(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, conflict := range s.conflicts {
		if conflict.ID == id {
			conflict.Resolution = nil
			conflict.ResolvedState = nil
			conflict.ResolvedAt = nil
			return nil
		}
	}
	return repositories.ErrNotFound
}

// MemorySyncState is an in-memory SyncStateRepository.
type MemorySyncState struct {
	mu       sync.Mutex
	holder   string
	lastSync *time.Time
}

func NewMemorySyncState() *MemorySyncState {
	return &MemorySyncState{}
}

func (s *MemorySyncState) AcquireCycleLock(ctx context.Context, holder string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.holder != "" && s.holder != holder {
		return false, nil
	}
	s.holder = holder
	return true, nil
}

func (s *MemorySyncState) ReleaseCycleLock(ctx context.Context, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.holder == holder {
		s.holder = ""
	}
	return nil
}

func (s *MemorySyncState) SetLastSync(ctx context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSync = &at
	return nil
}

func (s *MemorySyncState) GetLastSync(ctx context.Context) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync, nil
}

// FakeRemote simulates the remote system of record. Entity state is keyed by
// entityType/entityID; natural-key lookups scan the stored data.
type FakeRemote struct {
	mu       sync.Mutex
	entities map[string]*remote.EntityState

	// FailEntities makes Upsert/Delete/Fetch fail for the listed entity IDs,
	// simulating per-operation network errors.
	FailEntities map[string]bool

	// AppliedOrder records the entity IDs of successful writes in order.
	AppliedOrder []string

	// AppliedSeqs records, per entity, the "seq" payload field of each
	// successful write, for asserting apply order.
	AppliedSeqs map[string][]any
}

func NewFakeRemote() *FakeRemote {
	return &FakeRemote{
		entities:     make(map[string]*remote.EntityState),
		FailEntities: make(map[string]bool),
		AppliedSeqs:  make(map[string][]any),
	}
}

func (f *FakeRemote) key(entityType, entityID string) string {
	return entityType + "/" + entityID
}

// Seed installs a remote entity state directly.
func (f *FakeRemote) Seed(entityType, entityID string, data map[string]any, updatedAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entities[f.key(entityType, entityID)] = &remote.EntityState{
		Exists:    true,
		EntityID:  entityID,
		Data:      data,
		UpdatedAt: updatedAt,
	}
}

// Get returns the current remote data for an entity, or nil if absent.
func (f *FakeRemote) Get(entityType, entityID string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if state, ok := f.entities[f.key(entityType, entityID)]; ok {
		return state.Data
	}
	return nil
}

func (f *FakeRemote) FetchEntity(ctx context.Context, entityType, entityID string) (*remote.EntityState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailEntities[entityID] {
		return nil, fmt.Errorf("%w: injected failure", remote.ErrRemoteUnavailable)
	}
	if state, ok := f.entities[f.key(entityType, entityID)]; ok {
		copied := *state
		return &copied, nil
	}
	return &remote.EntityState{Exists: false, EntityID: entityID}, nil
}

func (f *FakeRemote) FetchByNaturalKey(ctx context.Context, entityType, field, value string) (*remote.EntityState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for key, state := range f.entities {
		if len(key) > len(entityType) && key[:len(entityType)+1] == entityType+"/" {
			if state.Data[field] == value {
				copied := *state
				return &copied, nil
			}
		}
	}
	return &remote.EntityState{Exists: false}, nil
}

func (f *FakeRemote) Upsert(ctx context.Context, entityType, entityID string, state map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailEntities[entityID] {
		return fmt.Errorf("%w: injected failure", remote.ErrRemoteUnavailable)
	}
	f.entities[f.key(entityType, entityID)] = &remote.EntityState{
		Exists:    true,
		EntityID:  entityID,
		Data:      state,
		UpdatedAt: time.Now().UTC(),
	}
	f.AppliedOrder = append(f.AppliedOrder, entityID)
	if seq, ok := state["seq"]; ok {
		f.AppliedSeqs[entityID] = append(f.AppliedSeqs[entityID], seq)
	}
	return nil
}

func (f *FakeRemote) Delete(ctx context.Context, entityType, entityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.FailEntities[entityID] {
		return fmt.Errorf("%w: injected failure", remote.ErrRemoteUnavailable)
	}
	delete(f.entities, f.key(entityType, entityID))
	f.AppliedOrder = append(f.AppliedOrder, entityID)
	return nil
}
