package sync

import (
	"errors"
	"fmt"

	"github.com/MarketingLimited/nexus-hr-sub006/internal/models"
)

// ErrSyncAlreadyRunning is returned by StartSync when a cycle is in flight.
// Callers treat it as an idempotent no-op, not a hard failure.
var ErrSyncAlreadyRunning = errors.New("sync cycle already running")

// ErrResolutionMismatch is returned when a resolved conflict is re-resolved
// with a different strategy than the one that closed it.
var ErrResolutionMismatch = errors.New("conflict already resolved with a different strategy")

// ConflictPolicyError means the requested resolution strategy is not valid
// for the conflict's type, e.g. merge on a delete_update conflict.
type ConflictPolicyError struct {
	ConflictType models.ConflictType
	Strategy     models.Resolution
	Reason       string
}

func (e *ConflictPolicyError) Error() string {
	return fmt.Sprintf("resolution %q is not valid for %s conflict: %s", e.Strategy, e.ConflictType, e.Reason)
}

// IsPolicyError checks whether err is a ConflictPolicyError.
func IsPolicyError(err error) bool {
	var policyErr *ConflictPolicyError
	return errors.As(err, &policyErr)
}
