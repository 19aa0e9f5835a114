package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/MarketingLimited/nexus-hr-sub006/internal/models"
	"github.com/MarketingLimited/nexus-hr-sub006/internal/remote"
	"github.com/MarketingLimited/nexus-hr-sub006/internal/repositories"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBatchSize = 50
	DefaultWorkers   = 4
	defaultLockTTL   = 5 * time.Minute
)

// CycleResult summarizes one completed sync cycle.
type CycleResult struct {
	Drained   int
	Completed int
	Failed    int
	Conflicts int
	Duration  time.Duration

	// blocked tracks entities parked behind a conflict during this cycle so
	// later drains do not pick their operations up again.
	blocked map[string]struct{}
}

type Config struct {
	BatchSize int
	Workers   int
	LockTTL   time.Duration
}

// Orchestrator drives sync cycles: it drains the operation log in batches,
// detects conflicts against the remote system of record, and commits results.
// At most one cycle runs at a time; a second trigger is rejected with
// ErrSyncAlreadyRunning rather than queued.
type Orchestrator struct {
	ops       repositories.OperationRepository
	conflicts repositories.ConflictRepository
	state     repositories.SyncStateRepository
	remote    remote.Client
	detector  *Detector
	resolver  *Resolver
	logger    *slog.Logger

	batchSize int
	workers   int
	lockTTL   time.Duration
	holder    string

	mu       stdsync.Mutex
	running  bool
	autoStop chan struct{}
}

func NewOrchestrator(
	ops repositories.OperationRepository,
	conflicts repositories.ConflictRepository,
	state repositories.SyncStateRepository,
	remoteClient remote.Client,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	return &Orchestrator{
		ops:       ops,
		conflicts: conflicts,
		state:     state,
		remote:    remoteClient,
		detector:  NewDetector(),
		resolver:  NewResolver(),
		logger:    logger,
		batchSize: cfg.BatchSize,
		workers:   cfg.Workers,
		lockTTL:   cfg.LockTTL,
		holder:    uuid.New().String(),
	}
}

// InProgress reports whether a cycle is currently running in this process.
func (o *Orchestrator) InProgress() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// AutoSyncEnabled reports whether the background timer is active.
func (o *Orchestrator) AutoSyncEnabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.autoStop != nil
}

// StartSync runs one full sync cycle. If a cycle is already running, either
// in this process or (via the shared lock) in another one, it returns
// ErrSyncAlreadyRunning without starting a second cycle.
func (o *Orchestrator) StartSync(ctx context.Context) (*CycleResult, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, ErrSyncAlreadyRunning
	}
	o.running = true
	autoResolve := o.autoStop != nil
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	acquired, err := o.state.AcquireCycleLock(ctx, o.holder, o.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire cycle lock: %w", err)
	}
	if !acquired {
		return nil, ErrSyncAlreadyRunning
	}
	defer func() {
		if err := o.state.ReleaseCycleLock(context.WithoutCancel(ctx), o.holder); err != nil {
			o.logger.Warn("failed to release cycle lock", "error", err)
		}
	}()

	start := time.Now()
	result := &CycleResult{blocked: make(map[string]struct{})}

	for {
		batch, err := o.ops.Drain(ctx, o.batchSize)
		if err != nil {
			return result, fmt.Errorf("failed to drain operation log: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		// Operations for an entity parked behind a conflict earlier in this
		// cycle come back out of the drain as pending; put them back and skip
		// them so the cycle terminates instead of retrying a blocked entity.
		fresh := batch[:0:0]
		for _, op := range batch {
			if _, parked := result.blocked[entityKey(op)]; parked {
				if err := o.ops.MarkPending(ctx, op.ID); err != nil {
					o.logger.Error("failed to return operation to pending", "operation_id", op.ID, "error", err)
				}
				continue
			}
			fresh = append(fresh, op)
		}
		if len(fresh) == 0 {
			break
		}
		result.Drained += len(fresh)
		o.runBatch(ctx, fresh, autoResolve, result)
	}

	if err := o.state.SetLastSync(ctx, time.Now().UTC()); err != nil {
		o.logger.Warn("failed to record last sync time", "error", err)
	}

	result.Duration = time.Since(start)
	o.logger.Info("sync cycle finished",
		"drained", result.Drained,
		"completed", result.Completed,
		"failed", result.Failed,
		"conflicts", result.Conflicts,
		"duration", result.Duration,
	)
	return result, nil
}

// runBatch applies one drained batch. Operations are grouped per entity so
// each entity's operations apply in append order, while distinct entities
// proceed in parallel up to the worker limit.
func (o *Orchestrator) runBatch(ctx context.Context, batch []*models.SyncOperation, autoResolve bool, result *CycleResult) {
	groups := groupByEntity(batch)

	var mu stdsync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for _, group := range groups {
		group := group
		g.Go(func() error {
			for i, op := range group {
				outcome := o.syncOne(ctx, op, autoResolve)
				mu.Lock()
				switch outcome {
				case outcomeCompleted:
					result.Completed++
				case outcomeConflict:
					result.Conflicts++
					result.blocked[entityKey(op)] = struct{}{}
				case outcomeFailed:
					result.Failed++
				}
				mu.Unlock()

				// A conflict blocks the entity: the rest of its operations
				// wait, still pending, until the conflict is resolved.
				if outcome == outcomeConflict {
					o.parkRemaining(ctx, group[i+1:])
					break
				}
			}
			return nil
		})
	}
	// Worker funcs never return errors; per-operation failures are recorded
	// on the operations themselves so the cycle keeps going.
	_ = g.Wait()
}

type opOutcome int

const (
	outcomeCompleted opOutcome = iota
	outcomeConflict
	outcomeFailed
)

func (o *Orchestrator) syncOne(ctx context.Context, op *models.SyncOperation, autoResolve bool) opOutcome {
	remoteState, err := o.fetchRemote(ctx, op)
	if err != nil {
		return o.fail(ctx, op, fmt.Errorf("fetch remote state: %w", err))
	}

	conflict := o.detector.Detect(op, remoteState)
	if conflict == nil {
		if err := o.apply(ctx, op); err != nil {
			return o.fail(ctx, op, fmt.Errorf("apply operation: %w", err))
		}
		if err := o.ops.MarkCompleted(ctx, op.ID); err != nil {
			o.logger.Error("failed to mark operation completed", "operation_id", op.ID, "error", err)
		}
		return outcomeCompleted
	}

	if autoResolve {
		if outcome, handled := o.tryAutoResolve(ctx, op, conflict); handled {
			return outcome
		}
	}

	// Surface the conflict and park the operation; the entity stays pending
	// until the conflict is resolved.
	if err := o.conflicts.Create(ctx, conflict); err != nil {
		return o.fail(ctx, op, fmt.Errorf("record conflict: %w", err))
	}
	if err := o.ops.MarkPending(ctx, op.ID); err != nil {
		o.logger.Error("failed to return operation to pending", "operation_id", op.ID, "error", err)
	}
	o.logger.Info("conflict detected",
		"entity_type", conflict.EntityType,
		"entity_id", conflict.EntityID,
		"conflict_type", conflict.Type,
	)
	return outcomeConflict
}

// tryAutoResolve applies the auto policy to a fresh conflict. handled is
// false when the conflict type has no automatic policy and must fall through
// to manual handling.
func (o *Orchestrator) tryAutoResolve(ctx context.Context, op *models.SyncOperation, conflict *models.SyncConflict) (outcome opOutcome, handled bool) {
	reconciled, err := o.resolver.Resolve(conflict, models.ResolutionAuto)
	if err != nil {
		if !IsPolicyError(err) {
			o.logger.Error("auto resolution failed", "entity_id", conflict.EntityID, "error", err)
		}
		return 0, false
	}

	if err := CommitResolution(ctx, o.remote, conflict, reconciled); err != nil {
		return o.fail(ctx, op, fmt.Errorf("commit auto resolution: %w", err)), true
	}

	// Keep the resolved conflict on record for inspection.
	resolution := models.ResolutionAuto
	now := time.Now().UTC()
	conflict.Resolution = &resolution
	conflict.ResolvedState = reconciled
	conflict.ResolvedAt = &now
	if err := o.conflicts.Create(ctx, conflict); err != nil {
		o.logger.Error("failed to record auto-resolved conflict", "entity_id", conflict.EntityID, "error", err)
	} else if err := o.conflicts.MarkResolved(ctx, conflict.ID, resolution, reconciled); err != nil {
		o.logger.Error("failed to close auto-resolved conflict", "conflict_id", conflict.ID, "error", err)
	}

	if err := o.ops.MarkCompleted(ctx, op.ID); err != nil {
		o.logger.Error("failed to mark operation completed", "operation_id", op.ID, "error", err)
	}
	return outcomeCompleted, true
}

func (o *Orchestrator) fetchRemote(ctx context.Context, op *models.SyncOperation) (*remote.EntityState, error) {
	// Creates are matched through the entity type's natural key: the remote
	// side has never seen our identifier for a record it created itself.
	if op.Kind == models.OpCreate {
		if field, ok := NaturalKeys[op.EntityType]; ok {
			if value, ok := op.Payload[field].(string); ok && value != "" {
				return o.remote.FetchByNaturalKey(ctx, op.EntityType, field, value)
			}
		}
	}
	return o.remote.FetchEntity(ctx, op.EntityType, op.EntityID)
}

func (o *Orchestrator) apply(ctx context.Context, op *models.SyncOperation) error {
	if op.Kind == models.OpDelete {
		return o.remote.Delete(ctx, op.EntityType, op.EntityID)
	}
	return o.remote.Upsert(ctx, op.EntityType, op.EntityID, op.Payload)
}

func (o *Orchestrator) fail(ctx context.Context, op *models.SyncOperation, cause error) opOutcome {
	o.logger.Warn("operation sync failed", "operation_id", op.ID, "entity_id", op.EntityID, "error", cause)
	if err := o.ops.MarkFailed(ctx, op.ID, cause.Error()); err != nil {
		o.logger.Error("failed to mark operation failed", "operation_id", op.ID, "error", err)
	}
	return outcomeFailed
}

// EnableAutoSync starts the background timer that triggers unattended cycles.
// Enabling twice is a no-op. While enabled, cycles also auto-resolve the
// conflict types that have an automatic policy.
func (o *Orchestrator) EnableAutoSync(interval time.Duration) error {
	if interval <= 0 {
		return errors.New("auto sync interval must be positive")
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.autoStop != nil {
		return nil
	}
	stop := make(chan struct{})
	o.autoStop = stop

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				// Skip the tick if a cycle is in flight; overlapping
				// triggers are dropped, never queued.
				if _, err := o.StartSync(context.Background()); err != nil && !errors.Is(err, ErrSyncAlreadyRunning) {
					o.logger.Error("auto sync cycle failed", "error", err)
				}
			}
		}
	}()
	return nil
}

// DisableAutoSync stops the background timer. A cycle already in flight runs
// to completion; only future cycles are prevented.
func (o *Orchestrator) DisableAutoSync() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.autoStop == nil {
		return
	}
	close(o.autoStop)
	o.autoStop = nil
}

func (o *Orchestrator) parkRemaining(ctx context.Context, ops []*models.SyncOperation) {
	for _, op := range ops {
		if err := o.ops.MarkPending(ctx, op.ID); err != nil {
			o.logger.Error("failed to return operation to pending", "operation_id", op.ID, "error", err)
		}
	}
}

func entityKey(op *models.SyncOperation) string {
	return op.EntityType + "/" + op.EntityID
}

func groupByEntity(batch []*models.SyncOperation) [][]*models.SyncOperation {
	index := make(map[string]int)
	var groups [][]*models.SyncOperation
	for _, op := range batch {
		key := entityKey(op)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], op)
	}
	return groups
}
