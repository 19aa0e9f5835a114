package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_operations (
	id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	kind           TEXT NOT NULL CHECK (kind IN ('create', 'update', 'delete')),
	entity_type    TEXT NOT NULL,
	entity_id      TEXT NOT NULL,
	base           JSONB,
	payload        JSONB,
	snapshot_at    TIMESTAMPTZ NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending'
	               CHECK (status IN ('pending', 'syncing', 'completed', 'failed')),
	failure_reason TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_sync_operations_pending
	ON sync_operations (created_at, id) WHERE status = 'pending';

CREATE INDEX IF NOT EXISTS idx_sync_operations_entity
	ON sync_operations (entity_type, entity_id);

CREATE TABLE IF NOT EXISTS sync_conflicts (
	id                UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	entity_type       TEXT NOT NULL,
	entity_id         TEXT NOT NULL,
	conflict_type     TEXT NOT NULL
	                  CHECK (conflict_type IN ('concurrent_update', 'delete_update', 'create_create')),
	remote_entity_id  TEXT NOT NULL DEFAULT '',
	operation_id      UUID NOT NULL REFERENCES sync_operations (id) ON DELETE CASCADE,
	base_snapshot     JSONB,
	local_snapshot    JSONB,
	local_snapshot_at TIMESTAMPTZ NOT NULL,
	remote_snapshot   JSONB,
	remote_updated_at TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
	detected_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	resolution        TEXT,
	resolved_state    JSONB,
	resolved_at       TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_sync_conflicts_open
	ON sync_conflicts (detected_at, id) WHERE resolved_at IS NULL;
`

// Migrate creates the sync tables if they do not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("error applying schema: %w", err)
	}
	return nil
}
