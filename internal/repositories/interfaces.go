package repositories

import (
	"context"
	"time"

	"github.com/MarketingLimited/nexus-hr-sub006/internal/models"
	"github.com/google/uuid"
)

type OperationRepository interface {
	Append(ctx context.Context, op *models.SyncOperation) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.SyncOperation, error)
	// Drain flips up to batchSize of the oldest pending operations to syncing
	// and returns them in creation order.
	Drain(ctx context.Context, batchSize int) ([]*models.SyncOperation, error)
	MarkCompleted(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	// MarkPending returns a syncing operation to the pending state, used when
	// a conflict blocks it from completing.
	MarkPending(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit int) ([]*models.SyncOperation, error)
	CountPending(ctx context.Context) (int64, error)
	CountFailed(ctx context.Context) (int64, error)
}

type ConflictRepository interface {
	Create(ctx context.Context, conflict *models.SyncConflict) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.SyncConflict, error)
	ListOpen(ctx context.Context) ([]*models.SyncConflict, error)
	CountOpen(ctx context.Context) (int64, error)
	// MarkResolved records the applied resolution and reconciled state. It
	// only succeeds if the conflict is still open.
	MarkResolved(ctx context.Context, id uuid.UUID, resolution models.Resolution, resolvedState map[string]any) error
	// Reopen clears a recorded resolution whose remote push failed, making
	// the conflict available for another attempt.
	Reopen(ctx context.Context, id uuid.UUID) error
}

type SyncStateRepository interface {
	// AcquireCycleLock takes the deployment-wide sync lock. Returns false if
	// another process holds it.
	AcquireCycleLock(ctx context.Context, holder string, ttl time.Duration) (bool, error)
	ReleaseCycleLock(ctx context.Context, holder string) error
	SetLastSync(ctx context.Context, at time.Time) error
	GetLastSync(ctx context.Context) (*time.Time, error)
}
