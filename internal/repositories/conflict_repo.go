package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MarketingLimited/nexus-hr-sub006/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrConflictClosed is returned when resolving a conflict that has already
// been resolved by another caller.
var ErrConflictClosed = errors.New("conflict already resolved")

type PostgresConflictRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresConflictRepository(pool *pgxpool.Pool) *PostgresConflictRepository {
	return &PostgresConflictRepository{pool: pool}
}

func (r *PostgresConflictRepository) Create(ctx context.Context, conflict *models.SyncConflict) error {
	local, remote, err := marshalSnapshots(conflict.LocalSnapshot, conflict.RemoteSnapshot)
	if err != nil {
		return err
	}
	base, _, err := marshalSnapshots(conflict.BaseSnapshot, nil)
	if err != nil {
		return err
	}

	query := `INSERT INTO sync_conflicts
	          (entity_type, entity_id, conflict_type, remote_entity_id, operation_id, base_snapshot, local_snapshot, local_snapshot_at, remote_snapshot, remote_updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	          RETURNING id, detected_at`

	err = r.pool.QueryRow(ctx, query,
		conflict.EntityType,
		conflict.EntityID,
		conflict.Type,
		conflict.RemoteEntityID,
		conflict.OperationID,
		base,
		local,
		conflict.LocalSnapshotAt,
		remote,
		conflict.RemoteUpdatedAt,
	).Scan(&conflict.ID, &conflict.DetectedAt)

	if err != nil {
		return fmt.Errorf("failed to create conflict: %w", err)
	}
	return nil
}

func (r *PostgresConflictRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SyncConflict, error) {
	query := conflictSelect + ` WHERE id = $1`

	conflict, err := scanConflict(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conflict: %w", err)
	}
	return conflict, nil
}

func (r *PostgresConflictRepository) ListOpen(ctx context.Context) ([]*models.SyncConflict, error) {
	query := conflictSelect + ` WHERE resolved_at IS NULL ORDER BY detected_at, id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []*models.SyncConflict
	for rows.Next() {
		conflict, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		conflicts = append(conflicts, conflict)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conflicts: %w", err)
	}
	return conflicts, nil
}

func (r *PostgresConflictRepository) CountOpen(ctx context.Context) (int64, error) {
	query := `SELECT COUNT(*) FROM sync_conflicts WHERE resolved_at IS NULL`

	var count int64
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count conflicts: %w", err)
	}
	return count, nil
}

// MarkResolved closes the conflict and stores the reconciled state. The
// resolved_at guard in the WHERE clause loses the race to any concurrent
// resolution, so a conflict can only be closed once.
func (r *PostgresConflictRepository) MarkResolved(ctx context.Context, id uuid.UUID, resolution models.Resolution, resolvedState map[string]any) error {
	var stateJSON []byte
	var err error
	if resolvedState != nil {
		if stateJSON, err = json.Marshal(resolvedState); err != nil {
			return fmt.Errorf("failed to marshal resolved state: %w", err)
		}
	}

	query := `UPDATE sync_conflicts
	          SET resolution = $1, resolved_state = $2, resolved_at = NOW()
	          WHERE id = $3 AND resolved_at IS NULL`

	result, err := r.pool.Exec(ctx, query, resolution, stateJSON, id)
	if err != nil {
		return fmt.Errorf("failed to resolve conflict: %w", err)
	}
	if result.RowsAffected() == 0 {
		// Distinguish missing from already-resolved for the caller.
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrConflictClosed
	}
	return nil
}

// Reopen clears a resolution whose remote push failed so the conflict can be
// resolved again.
func (r *PostgresConflictRepository) Reopen(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE sync_conflicts
	          SET resolution = NULL, resolved_state = NULL, resolved_at = NULL
	          WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to reopen conflict: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const conflictSelect = `SELECT id, entity_type, entity_id, conflict_type, remote_entity_id, operation_id,
       base_snapshot, local_snapshot, local_snapshot_at, remote_snapshot, remote_updated_at,
       detected_at, resolution, resolved_state, resolved_at
FROM sync_conflicts`

func scanConflict(row rowScanner) (*models.SyncConflict, error) {
	var c models.SyncConflict
	var base, local, remote, resolved []byte
	var resolution *string

	err := row.Scan(
		&c.ID,
		&c.EntityType,
		&c.EntityID,
		&c.Type,
		&c.RemoteEntityID,
		&c.OperationID,
		&base,
		&local,
		&c.LocalSnapshotAt,
		&remote,
		&c.RemoteUpdatedAt,
		&c.DetectedAt,
		&resolution,
		&resolved,
		&c.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalSnapshot(base, &c.BaseSnapshot); err != nil {
		return nil, fmt.Errorf("failed to decode base snapshot: %w", err)
	}
	if err := unmarshalSnapshot(local, &c.LocalSnapshot); err != nil {
		return nil, fmt.Errorf("failed to decode local snapshot: %w", err)
	}
	if err := unmarshalSnapshot(remote, &c.RemoteSnapshot); err != nil {
		return nil, fmt.Errorf("failed to decode remote snapshot: %w", err)
	}
	if err := unmarshalSnapshot(resolved, &c.ResolvedState); err != nil {
		return nil, fmt.Errorf("failed to decode resolved state: %w", err)
	}
	if resolution != nil {
		res := models.Resolution(*resolution)
		c.Resolution = &res
	}
	return &c, nil
}
