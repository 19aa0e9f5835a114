package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MarketingLimited/nexus-hr-sub006/internal/models"
	"github.com/MarketingLimited/nexus-hr-sub006/internal/remote"
	"github.com/MarketingLimited/nexus-hr-sub006/internal/repositories"
	"github.com/MarketingLimited/nexus-hr-sub006/internal/sync"
	"github.com/google/uuid"
)

var (
	ErrConflictNotFound  = errors.New("conflict not found")
	ErrInvalidResolution = errors.New("invalid resolution strategy")
)

const operationListLimit = 200

// SyncService fronts the sync subsystem: it reports stats, triggers cycles,
// and applies manual conflict resolutions.
type SyncService struct {
	ops          repositories.OperationRepository
	conflicts    repositories.ConflictRepository
	state        repositories.SyncStateRepository
	remote       remote.Client
	orchestrator *sync.Orchestrator
	resolver     *sync.Resolver
	autoInterval time.Duration
	logger       *slog.Logger
}

func NewSyncService(
	ops repositories.OperationRepository,
	conflicts repositories.ConflictRepository,
	state repositories.SyncStateRepository,
	remoteClient remote.Client,
	orchestrator *sync.Orchestrator,
	autoInterval time.Duration,
	logger *slog.Logger,
) *SyncService {
	return &SyncService{
		ops:          ops,
		conflicts:    conflicts,
		state:        state,
		remote:       remoteClient,
		orchestrator: orchestrator,
		resolver:     sync.NewResolver(),
		autoInterval: autoInterval,
		logger:       logger,
	}
}

// Stats recomputes the dashboard counters from live state on every call.
func (s *SyncService) Stats(ctx context.Context) (*models.SyncStats, error) {
	pending, err := s.ops.CountPending(ctx)
	if err != nil {
		return nil, err
	}
	failed, err := s.ops.CountFailed(ctx)
	if err != nil {
		return nil, err
	}
	conflicts, err := s.conflicts.CountOpen(ctx)
	if err != nil {
		return nil, err
	}
	lastSync, err := s.state.GetLastSync(ctx)
	if err != nil {
		return nil, err
	}

	return &models.SyncStats{
		InProgress: s.orchestrator.InProgress(),
		Pending:    pending,
		Failed:     failed,
		Conflicts:  conflicts,
		LastSync:   lastSync,
	}, nil
}

// StartSync triggers a cycle. A trigger while a cycle is running is an
// idempotent no-op; the caller gets the current stats either way.
func (s *SyncService) StartSync(ctx context.Context) (*models.SyncStats, error) {
	if _, err := s.orchestrator.StartSync(ctx); err != nil && !errors.Is(err, sync.ErrSyncAlreadyRunning) {
		return nil, err
	}
	return s.Stats(ctx)
}

func (s *SyncService) ListOperations(ctx context.Context) ([]*models.SyncOperation, error) {
	return s.ops.List(ctx, operationListLimit)
}

func (s *SyncService) ListConflicts(ctx context.Context) ([]*models.SyncConflict, error) {
	return s.conflicts.ListOpen(ctx)
}

// ResolveConflict applies a manual resolution: it reconciles the snapshots,
// pushes the result to the system of record, closes the conflict, and
// completes the operation the conflict was blocking.
func (s *SyncService) ResolveConflict(ctx context.Context, id uuid.UUID, strategy models.Resolution) (*models.SyncConflict, error) {
	if !strategy.IsValid() {
		return nil, ErrInvalidResolution
	}

	conflict, err := s.conflicts.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrConflictNotFound
	}
	if err != nil {
		return nil, err
	}

	reconciled, err := s.resolver.Resolve(conflict, strategy)
	if err != nil {
		return nil, err
	}

	// Re-resolving with the same strategy changes nothing.
	if conflict.IsResolved() {
		return conflict, nil
	}

	// Claim the conflict before touching the remote so two concurrent
	// resolvers cannot both push; the loser reports the stored outcome.
	err = s.conflicts.MarkResolved(ctx, conflict.ID, strategy, reconciled)
	if errors.Is(err, repositories.ErrConflictClosed) {
		return s.conflicts.GetByID(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	if err := sync.CommitResolution(ctx, s.remote, conflict, reconciled); err != nil {
		// Give the claim back so the resolution can be retried.
		if reopenErr := s.conflicts.Reopen(ctx, conflict.ID); reopenErr != nil {
			s.logger.Error("failed to reopen conflict after push failure",
				"conflict_id", conflict.ID, "error", reopenErr)
		}
		return nil, fmt.Errorf("failed to commit resolution: %w", err)
	}

	if err := s.ops.MarkCompleted(ctx, conflict.OperationID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		s.logger.Error("failed to complete operation after resolution",
			"operation_id", conflict.OperationID, "error", err)
	}

	s.logger.Info("conflict resolved",
		"conflict_id", conflict.ID,
		"entity_id", conflict.EntityID,
		"strategy", strategy,
	)

	now := time.Now().UTC()
	conflict.Resolution = &strategy
	conflict.ResolvedState = reconciled
	conflict.ResolvedAt = &now
	return conflict, nil
}

// SetAutoSync toggles the process-wide background sync timer.
func (s *SyncService) SetAutoSync(enabled bool) error {
	if enabled {
		return s.orchestrator.EnableAutoSync(s.autoInterval)
	}
	s.orchestrator.DisableAutoSync()
	return nil
}

func (s *SyncService) AutoSyncEnabled() bool {
	return s.orchestrator.AutoSyncEnabled()
}
