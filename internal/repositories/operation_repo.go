package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/MarketingLimited/nexus-hr-sub006/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

type PostgresOperationRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresOperationRepository(pool *pgxpool.Pool) *PostgresOperationRepository {
	return &PostgresOperationRepository{pool: pool}
}

func (r *PostgresOperationRepository) Append(ctx context.Context, op *models.SyncOperation) error {
	base, payload, err := marshalSnapshots(op.Base, op.Payload)
	if err != nil {
		return err
	}

	query := `INSERT INTO sync_operations (kind, entity_type, entity_id, base, payload, snapshot_at, status)
	          VALUES ($1, $2, $3, $4, $5, $6, 'pending')
	          RETURNING id, status, created_at`

	err = r.pool.QueryRow(ctx, query,
		op.Kind,
		op.EntityType,
		op.EntityID,
		base,
		payload,
		op.SnapshotAt,
	).Scan(&op.ID, &op.Status, &op.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to append operation: %w", err)
	}
	return nil
}

func (r *PostgresOperationRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SyncOperation, error) {
	query := `SELECT id, kind, entity_type, entity_id, base, payload, snapshot_at, status, failure_reason, created_at
	          FROM sync_operations
	          WHERE id = $1`

	op, err := scanOperation(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}
	return op, nil
}

// Drain picks the oldest pending operations and flips them to syncing in one
// statement. FOR UPDATE SKIP LOCKED keeps concurrent drainers from grabbing
// the same rows; ordering by (created_at, id) preserves per-entity FIFO.
func (r *PostgresOperationRepository) Drain(ctx context.Context, batchSize int) ([]*models.SyncOperation, error) {
	query := `UPDATE sync_operations
	          SET status = 'syncing'
	          FROM (
	              SELECT id FROM sync_operations
	              WHERE status = 'pending'
	              ORDER BY created_at, id
	              LIMIT $1
	              FOR UPDATE SKIP LOCKED
	          ) batch
	          WHERE sync_operations.id = batch.id
	          RETURNING sync_operations.id, kind, entity_type, entity_id, base, payload,
	                    snapshot_at, status, failure_reason, created_at`

	rows, err := r.pool.Query(ctx, query, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to drain operations: %w", err)
	}
	defer rows.Close()

	ops, err := collectOperations(rows)
	if err != nil {
		return nil, err
	}

	// RETURNING does not guarantee order; restore creation order.
	sortOperations(ops)
	return ops, nil
}

func (r *PostgresOperationRepository) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	return r.setStatus(ctx, id, models.StatusCompleted, nil)
}

func (r *PostgresOperationRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return r.setStatus(ctx, id, models.StatusFailed, &reason)
}

func (r *PostgresOperationRepository) MarkPending(ctx context.Context, id uuid.UUID) error {
	return r.setStatus(ctx, id, models.StatusPending, nil)
}

// setStatus only ever touches status and failure_reason. Snapshot columns are
// immutable after Append.
func (r *PostgresOperationRepository) setStatus(ctx context.Context, id uuid.UUID, status models.OperationStatus, reason *string) error {
	query := `UPDATE sync_operations SET status = $1, failure_reason = $2 WHERE id = $3`

	result, err := r.pool.Exec(ctx, query, status, reason, id)
	if err != nil {
		return fmt.Errorf("failed to mark operation %s: %w", status, err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresOperationRepository) List(ctx context.Context, limit int) ([]*models.SyncOperation, error) {
	query := `SELECT id, kind, entity_type, entity_id, base, payload, snapshot_at, status, failure_reason, created_at
	          FROM sync_operations
	          ORDER BY created_at, id
	          LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	return collectOperations(rows)
}

func (r *PostgresOperationRepository) CountPending(ctx context.Context) (int64, error) {
	return r.countByStatus(ctx, models.StatusPending, models.StatusSyncing)
}

func (r *PostgresOperationRepository) CountFailed(ctx context.Context) (int64, error) {
	return r.countByStatus(ctx, models.StatusFailed)
}

func (r *PostgresOperationRepository) countByStatus(ctx context.Context, statuses ...models.OperationStatus) (int64, error) {
	query := `SELECT COUNT(*) FROM sync_operations WHERE status = ANY($1)`

	list := make([]string, len(statuses))
	for i, s := range statuses {
		list[i] = string(s)
	}

	var count int64
	if err := r.pool.QueryRow(ctx, query, list).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count operations: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperation(row rowScanner) (*models.SyncOperation, error) {
	var op models.SyncOperation
	var base, payload []byte

	err := row.Scan(
		&op.ID,
		&op.Kind,
		&op.EntityType,
		&op.EntityID,
		&base,
		&payload,
		&op.SnapshotAt,
		&op.Status,
		&op.FailureReason,
		&op.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalSnapshot(base, &op.Base); err != nil {
		return nil, fmt.Errorf("failed to decode base snapshot: %w", err)
	}
	if err := unmarshalSnapshot(payload, &op.Payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload snapshot: %w", err)
	}
	return &op, nil
}

func collectOperations(rows pgx.Rows) ([]*models.SyncOperation, error) {
	var ops []*models.SyncOperation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}
	return ops, nil
}

func sortOperations(ops []*models.SyncOperation) {
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].CreatedAt.Equal(ops[j].CreatedAt) {
			return ops[i].ID.String() < ops[j].ID.String()
		}
		return ops[i].CreatedAt.Before(ops[j].CreatedAt)
	})
}

func marshalSnapshots(base, payload map[string]any) ([]byte, []byte, error) {
	var baseJSON, payloadJSON []byte
	var err error

	if base != nil {
		if baseJSON, err = json.Marshal(base); err != nil {
			return nil, nil, fmt.Errorf("failed to marshal base snapshot: %w", err)
		}
	}
	if payload != nil {
		if payloadJSON, err = json.Marshal(payload); err != nil {
			return nil, nil, fmt.Errorf("failed to marshal payload snapshot: %w", err)
		}
	}
	return baseJSON, payloadJSON, nil
}

func unmarshalSnapshot(data []byte, dest *map[string]any) error {
	if len(data) == 0 {
		*dest = nil
		return nil
	}
	return json.Unmarshal(data, dest)
}
