package sync

import (
	"context"

	"github.com/MarketingLimited/nexus-hr-sub006/internal/models"
	"github.com/MarketingLimited/nexus-hr-sub006/internal/remote"
)

// Resolver turns a conflict plus a strategy into a single reconciled entity
// state. A nil reconciled state means the entity ends up deleted.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve applies a strategy to a conflict. Resolving an already-resolved
// conflict with the same strategy is a no-op that returns the stored result;
// a different strategy is rejected.
func (r *Resolver) Resolve(conflict *models.SyncConflict, strategy models.Resolution) (map[string]any, error) {
	if conflict.IsResolved() {
		if conflict.Resolution != nil && *conflict.Resolution == strategy {
			return conflict.ResolvedState, nil
		}
		return nil, ErrResolutionMismatch
	}

	switch strategy {
	case models.ResolutionLocalWins:
		return conflict.LocalSnapshot, nil
	case models.ResolutionRemoteWins:
		return conflict.RemoteSnapshot, nil
	case models.ResolutionMerge:
		return r.merge(conflict)
	case models.ResolutionAuto:
		return r.auto(conflict)
	default:
		return nil, &ConflictPolicyError{
			ConflictType: conflict.Type,
			Strategy:     strategy,
			Reason:       "unknown strategy",
		}
	}
}

// merge builds a field-level union of both snapshots against the shared base.
// A field changed by only one side takes that side's value; a field changed
// by both takes the side modified later. Merge has no meaning when one side
// is a deletion, so delete_update requires an explicit winner.
func (r *Resolver) merge(conflict *models.SyncConflict) (map[string]any, error) {
	if conflict.Type == models.ConflictDeleteUpdate {
		return nil, &ConflictPolicyError{
			ConflictType: conflict.Type,
			Strategy:     models.ResolutionMerge,
			Reason:       "one side deleted the entity; resolve with local_wins or remote_wins",
		}
	}

	localChanged := diffFields(conflict.BaseSnapshot, conflict.LocalSnapshot)
	remoteChanged := toFieldSet(diffFields(conflict.BaseSnapshot, conflict.RemoteSnapshot))
	localNewer := conflict.LocalSnapshotAt.After(conflict.RemoteUpdatedAt)

	merged := make(map[string]any, len(conflict.BaseSnapshot))
	for field, value := range conflict.BaseSnapshot {
		merged[field] = value
	}
	for field := range remoteChanged {
		applyField(merged, conflict.RemoteSnapshot, field)
	}
	for _, field := range localChanged {
		if _, both := remoteChanged[field]; both && !localNewer {
			continue
		}
		applyField(merged, conflict.LocalSnapshot, field)
	}
	return merged, nil
}

// applyField copies one field from a snapshot, treating absence as removal.
func applyField(dest, src map[string]any, field string) {
	if value, ok := src[field]; ok {
		dest[field] = value
	} else {
		delete(dest, field)
	}
}

func toFieldSet(fields []string) map[string]struct{} {
	set := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		set[field] = struct{}{}
	}
	return set
}

// CommitResolution pushes a resolution outcome to the system of record. A nil
// reconciled state means the entity ends up deleted.
//
// A create_create conflict commits against the remote side's identifier: the
// record already exists there under its own ID, and writing under the local
// ID would mint exactly the duplicate the conflict flagged. When the
// reconciled state matches what the remote already holds, no write is needed.
func CommitResolution(ctx context.Context, client remote.Client, conflict *models.SyncConflict, reconciled map[string]any) error {
	entityID := conflict.EntityID
	if conflict.Type == models.ConflictCreateCreate && conflict.RemoteEntityID != "" {
		entityID = conflict.RemoteEntityID
		if snapshotValuesEqual(reconciled, conflict.RemoteSnapshot) {
			return nil
		}
	}
	if reconciled == nil {
		return client.Delete(ctx, conflict.EntityType, entityID)
	}
	return client.Upsert(ctx, conflict.EntityType, entityID, reconciled)
}

// auto picks a deterministic policy from the conflict type: the remote side
// is the system of record for duplicate creates, concurrent updates merge
// field by field, and deletions never resolve unattended.
func (r *Resolver) auto(conflict *models.SyncConflict) (map[string]any, error) {
	switch conflict.Type {
	case models.ConflictCreateCreate:
		return conflict.RemoteSnapshot, nil
	case models.ConflictConcurrentUpdate:
		return r.merge(conflict)
	default:
		return nil, &ConflictPolicyError{
			ConflictType: conflict.Type,
			Strategy:     models.ResolutionAuto,
			Reason:       "no automatic policy for this conflict type",
		}
	}
}
