package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/MarketingLimited/nexus-hr-sub006/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestConflict(t *testing.T, pool *pgxpool.Pool, repo *PostgresConflictRepository) *models.SyncConflict {
	t.Helper()
	ctx := context.Background()

	opRepo := NewPostgresOperationRepository(pool)
	op := testOperation("emp-"+uuid.NewString(), time.Now().UTC())
	require.NoError(t, opRepo.Append(ctx, op))

	conflict := &models.SyncConflict{
		EntityType:      op.EntityType,
		EntityID:        op.EntityID,
		Type:            models.ConflictConcurrentUpdate,
		OperationID:     op.ID,
		BaseSnapshot:    op.Base,
		LocalSnapshot:   op.Payload,
		LocalSnapshotAt: op.SnapshotAt,
		RemoteEntityID:  "remote-" + op.EntityID,
		RemoteSnapshot:  map[string]any{"salary": 70000.0},
		RemoteUpdatedAt: op.SnapshotAt.Add(time.Minute),
	}
	require.NoError(t, repo.Create(ctx, conflict))

	t.Cleanup(func() {
		// Deleting the operation cascades to the conflict.
		cleanupOperations(t, pool, []uuid.UUID{op.ID})
	})
	return conflict
}

func TestConflictRepository_CreateAndGet(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresConflictRepository(pool)
	ctx := context.Background()

	conflict := createTestConflict(t, pool, repo)
	assert.NotEqual(t, uuid.Nil, conflict.ID)
	assert.False(t, conflict.DetectedAt.IsZero())

	fetched, err := repo.GetByID(ctx, conflict.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConflictConcurrentUpdate, fetched.Type)
	assert.Equal(t, conflict.RemoteEntityID, fetched.RemoteEntityID)
	assert.Equal(t, conflict.LocalSnapshot, fetched.LocalSnapshot)
	assert.Equal(t, conflict.RemoteSnapshot, fetched.RemoteSnapshot)
	assert.False(t, fetched.IsResolved())

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConflictRepository_MarkResolvedOnce(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresConflictRepository(pool)
	ctx := context.Background()

	conflict := createTestConflict(t, pool, repo)
	resolvedState := map[string]any{"salary": 70000.0}

	err := repo.MarkResolved(ctx, conflict.ID, models.ResolutionRemoteWins, resolvedState)
	require.NoError(t, err)

	fetched, err := repo.GetByID(ctx, conflict.ID)
	require.NoError(t, err)
	require.True(t, fetched.IsResolved())
	require.NotNil(t, fetched.Resolution)
	assert.Equal(t, models.ResolutionRemoteWins, *fetched.Resolution)
	assert.Equal(t, resolvedState, fetched.ResolvedState)

	// Second resolution loses the resolved_at guard.
	err = repo.MarkResolved(ctx, conflict.ID, models.ResolutionLocalWins, nil)
	assert.ErrorIs(t, err, ErrConflictClosed)

	err = repo.MarkResolved(ctx, uuid.New(), models.ResolutionLocalWins, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConflictRepository_ReopenAfterFailedPush(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresConflictRepository(pool)
	ctx := context.Background()

	conflict := createTestConflict(t, pool, repo)
	require.NoError(t, repo.MarkResolved(ctx, conflict.ID, models.ResolutionLocalWins, conflict.LocalSnapshot))

	require.NoError(t, repo.Reopen(ctx, conflict.ID))

	fetched, err := repo.GetByID(ctx, conflict.ID)
	require.NoError(t, err)
	assert.False(t, fetched.IsResolved())
	assert.Nil(t, fetched.Resolution)
	assert.Nil(t, fetched.ResolvedState)

	// Reopened conflicts accept a fresh resolution.
	require.NoError(t, repo.MarkResolved(ctx, conflict.ID, models.ResolutionRemoteWins, conflict.RemoteSnapshot))

	assert.ErrorIs(t, repo.Reopen(ctx, uuid.New()), ErrNotFound)
}

func TestConflictRepository_ListAndCountOpen(t *testing.T) {
	pool := getTestPool(t)
	repo := NewPostgresConflictRepository(pool)
	ctx := context.Background()

	conflict := createTestConflict(t, pool, repo)

	open, err := repo.ListOpen(ctx)
	require.NoError(t, err)
	var found bool
	for _, c := range open {
		if c.ID == conflict.ID {
			found = true
		}
	}
	assert.True(t, found, "fresh conflict should be listed as open")

	before, err := repo.CountOpen(ctx)
	require.NoError(t, err)

	require.NoError(t, repo.MarkResolved(ctx, conflict.ID, models.ResolutionLocalWins, conflict.LocalSnapshot))

	after, err := repo.CountOpen(ctx)
	require.NoError(t, err)
	assert.Equal(t, before-1, after)
}
