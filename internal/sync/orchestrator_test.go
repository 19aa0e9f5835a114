package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/MarketingLimited/nexus-hr-sub006/internal/models"
	"github.com/MarketingLimited/nexus-hr-sub006/internal/remote"
	"github.com/MarketingLimited/nexus-hr-sub006/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ops       *testutil.MemoryOperationLog
	conflicts *testutil.MemoryConflictStore
	state     *testutil.MemorySyncState
	remote    *testutil.FakeRemote
}

func newFixture(t *testing.T) (*Orchestrator, *fixture) {
	t.Helper()
	f := &fixture{
		ops:       testutil.NewMemoryOperationLog(),
		conflicts: testutil.NewMemoryConflictStore(),
		state:     testutil.NewMemorySyncState(),
		remote:    testutil.NewFakeRemote(),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orchestrator := NewOrchestrator(f.ops, f.conflicts, f.state, f.remote, Config{BatchSize: 10, Workers: 2}, logger)
	return orchestrator, f
}

func appendUpdate(t *testing.T, f *fixture, entityID string, base, payload map[string]any, snapshotAt time.Time) *models.SyncOperation {
	t.Helper()
	op := &models.SyncOperation{
		Kind:       models.OpUpdate,
		EntityType: "employee",
		EntityID:   entityID,
		Base:       base,
		Payload:    payload,
		SnapshotAt: snapshotAt,
	}
	require.NoError(t, f.ops.Append(context.Background(), op))
	return op
}

func TestOrchestrator_CleanCycleCompletesAllOperations(t *testing.T) {
	orchestrator, f := newFixture(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// Three chained mutations to emp-1; remote state older than all of them.
	f.remote.Seed("employee", "emp-1", map[string]any{"seq": 0.0, "salary": 50000.0}, start.Add(-time.Hour))
	s0 := map[string]any{"seq": 0.0, "salary": 50000.0}
	s1 := map[string]any{"seq": 1.0, "salary": 51000.0}
	s2 := map[string]any{"seq": 2.0, "salary": 52000.0}
	s3 := map[string]any{"seq": 3.0, "salary": 53000.0}
	appendUpdate(t, f, "emp-1", s0, s1, start)
	appendUpdate(t, f, "emp-1", s1, s2, start.Add(time.Minute))
	appendUpdate(t, f, "emp-1", s2, s3, start.Add(2*time.Minute))

	result, err := orchestrator.StartSync(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Drained)
	assert.Equal(t, 3, result.Completed)
	assert.Equal(t, 0, result.Conflicts)
	assert.Equal(t, 0, result.Failed)

	pending, _ := f.ops.CountPending(ctx)
	assert.Zero(t, pending)

	lastSync, err := f.state.GetLastSync(ctx)
	require.NoError(t, err)
	assert.NotNil(t, lastSync)

	// FIFO per entity: seq values applied in append order.
	assert.Equal(t, []any{1.0, 2.0, 3.0}, f.remote.AppliedSeqs["emp-1"])
	assert.Equal(t, s3, f.remote.Get("employee", "emp-1"))
}

func TestOrchestrator_AtMostOneCycle(t *testing.T) {
	orchestrator, f := newFixture(t)
	ctx := context.Background()

	gate := make(chan struct{})
	orchestrator.remote = &gatedRemote{FakeRemote: f.remote, gate: gate}

	appendUpdate(t, f, "emp-1",
		map[string]any{"salary": 1.0}, map[string]any{"salary": 2.0}, time.Now().UTC())

	firstDone := make(chan error, 1)
	go func() {
		_, err := orchestrator.StartSync(ctx)
		firstDone <- err
	}()

	// Wait for the first cycle to be mid-flight.
	require.Eventually(t, orchestrator.InProgress, time.Second, time.Millisecond)

	_, err := orchestrator.StartSync(ctx)
	assert.True(t, errors.Is(err, ErrSyncAlreadyRunning))

	close(gate)
	require.NoError(t, <-firstDone)
	assert.False(t, orchestrator.InProgress())
}

func TestOrchestrator_PartialFailureKeepsCycleGoing(t *testing.T) {
	orchestrator, f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	f.remote.FailEntities["emp-bad"] = true
	bad := appendUpdate(t, f, "emp-bad",
		map[string]any{"salary": 1.0}, map[string]any{"salary": 2.0}, now)
	good := appendUpdate(t, f, "emp-good",
		map[string]any{"salary": 1.0}, map[string]any{"salary": 2.0}, now)

	result, err := orchestrator.StartSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, 1, result.Failed)

	failedOp, err := f.ops.GetByID(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, failedOp.Status)
	require.NotNil(t, failedOp.FailureReason)
	assert.Contains(t, *failedOp.FailureReason, "remote system unavailable")

	goodOp, err := f.ops.GetByID(ctx, good.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, goodOp.Status)
}

func TestOrchestrator_ConflictParksOperationAsPending(t *testing.T) {
	orchestrator, f := newFixture(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// Remote changed the same field later than the local snapshot.
	f.remote.Seed("employee", "emp-2", map[string]any{"salary": 70000.0}, start.Add(10*time.Minute))
	op := appendUpdate(t, f, "emp-2",
		map[string]any{"salary": 50000.0}, map[string]any{"salary": 60000.0}, start)

	result, err := orchestrator.StartSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Conflicts)
	assert.Equal(t, 0, result.Completed)

	open, err := f.conflicts.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, models.ConflictConcurrentUpdate, open[0].Type)
	assert.Equal(t, op.ID, open[0].OperationID)

	parked, err := f.ops.GetByID(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, parked.Status, "entity stays unsynced until the conflict is resolved")

	// Remote state untouched by the conflicting operation.
	assert.Equal(t, map[string]any{"salary": 70000.0}, f.remote.Get("employee", "emp-2"))
}

func TestOrchestrator_ConflictBlocksLaterOperationsForEntity(t *testing.T) {
	orchestrator, f := newFixture(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	f.remote.Seed("employee", "emp-2", map[string]any{"salary": 70000.0}, start.Add(10*time.Minute))
	first := appendUpdate(t, f, "emp-2",
		map[string]any{"salary": 50000.0}, map[string]any{"salary": 60000.0}, start)
	second := appendUpdate(t, f, "emp-2",
		map[string]any{"salary": 60000.0}, map[string]any{"salary": 61000.0}, start.Add(time.Minute))

	result, err := orchestrator.StartSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Conflicts)
	assert.Equal(t, 0, result.Completed)

	// Neither the conflicted operation nor its successor applies; both wait
	// in the queue for resolution.
	for _, op := range []*models.SyncOperation{first, second} {
		got, err := f.ops.GetByID(ctx, op.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, got.Status)
	}
	assert.Equal(t, map[string]any{"salary": 70000.0}, f.remote.Get("employee", "emp-2"))
}

func TestOrchestrator_AutoSyncResolvesConcurrentUpdates(t *testing.T) {
	orchestrator, f := newFixture(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// Long interval: the timer never fires during the test; enabling still
	// switches cycles into auto-resolution mode.
	require.NoError(t, orchestrator.EnableAutoSync(time.Hour))
	defer orchestrator.DisableAutoSync()

	f.remote.Seed("employee", "emp-2",
		map[string]any{"salary": 50000.0, "department": "Marketing"}, start.Add(10*time.Minute))
	appendUpdate(t, f, "emp-2",
		map[string]any{"salary": 50000.0, "department": "Sales"},
		map[string]any{"salary": 50000.0, "department": "Support"},
		start)

	result, err := orchestrator.StartSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, 0, result.Conflicts)

	// Remote side is newer, so its department value wins the merge.
	assert.Equal(t, "Marketing", f.remote.Get("employee", "emp-2")["department"])

	open, _ := f.conflicts.CountOpen(ctx)
	assert.Zero(t, open, "auto-resolved conflict is recorded closed")
}

// Both sides created the same employee: the remote under its own identifier,
// found through the email natural key. Auto resolution keeps the remote
// record and must not write a second copy under the local identifier.
func TestOrchestrator_AutoSyncDuplicateCreateKeepsSingleRemoteRecord(t *testing.T) {
	orchestrator, f := newFixture(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, orchestrator.EnableAutoSync(time.Hour))
	defer orchestrator.DisableAutoSync()

	remoteData := map[string]any{"email": "jo@example.com", "department": "HR"}
	f.remote.Seed("employee", "emp-remote", remoteData, start.Add(-time.Hour))

	op := &models.SyncOperation{
		Kind:       models.OpCreate,
		EntityType: "employee",
		EntityID:   "emp-local",
		Payload:    map[string]any{"email": "jo@example.com", "department": "Sales"},
		SnapshotAt: start,
	}
	require.NoError(t, f.ops.Append(ctx, op))

	result, err := orchestrator.StartSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, 0, result.Conflicts)

	assert.Nil(t, f.remote.Get("employee", "emp-local"), "local id must not mint a duplicate record")
	assert.Equal(t, remoteData, f.remote.Get("employee", "emp-remote"))
	assert.Empty(t, f.remote.AppliedOrder, "remote already holds the winning state")

	completed, err := f.ops.GetByID(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, completed.Status)
}

func TestOrchestrator_AutoSyncNeverResolvesDeleteUpdate(t *testing.T) {
	orchestrator, f := newFixture(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, orchestrator.EnableAutoSync(time.Hour))
	defer orchestrator.DisableAutoSync()

	f.remote.Seed("employee", "emp-3", map[string]any{"salary": 65000.0}, start.Add(time.Minute))
	op := &models.SyncOperation{
		Kind:       models.OpDelete,
		EntityType: "employee",
		EntityID:   "emp-3",
		Base:       map[string]any{"salary": 50000.0},
		SnapshotAt: start,
	}
	require.NoError(t, f.ops.Append(ctx, op))

	result, err := orchestrator.StartSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Conflicts, "delete_update has no auto policy")

	open, err := f.conflicts.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, models.ConflictDeleteUpdate, open[0].Type)
}

func TestOrchestrator_EnableDisableAutoSync(t *testing.T) {
	orchestrator, _ := newFixture(t)

	assert.False(t, orchestrator.AutoSyncEnabled())
	require.NoError(t, orchestrator.EnableAutoSync(time.Hour))
	assert.True(t, orchestrator.AutoSyncEnabled())

	// Enabling twice is a no-op.
	require.NoError(t, orchestrator.EnableAutoSync(time.Hour))

	orchestrator.DisableAutoSync()
	assert.False(t, orchestrator.AutoSyncEnabled())
	orchestrator.DisableAutoSync()

	assert.Error(t, orchestrator.EnableAutoSync(0))
}

func TestOrchestrator_SharedLockBlocksSecondProcess(t *testing.T) {
	orchestrator, f := newFixture(t)
	ctx := context.Background()

	// Another process holds the deployment-wide lock.
	held, err := f.state.AcquireCycleLock(ctx, "other-process", time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	_, err = orchestrator.StartSync(ctx)
	assert.True(t, errors.Is(err, ErrSyncAlreadyRunning))
}

// gatedRemote blocks fetches until the gate closes, keeping a cycle in
// flight long enough to observe it.
type gatedRemote struct {
	*testutil.FakeRemote
	gate chan struct{}
}

func (g *gatedRemote) FetchEntity(ctx context.Context, entityType, entityID string) (*remote.EntityState, error) {
	<-g.gate
	return g.FakeRemote.FetchEntity(ctx, entityType, entityID)
}
