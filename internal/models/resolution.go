package models

// Resolution is the strategy used to reconcile a conflict.
type Resolution string

const (
	// ResolutionMerge combines both sides field by field, preferring the side
	// modified later for each overlapping field.
	ResolutionMerge Resolution = "merge"

	// ResolutionLocalWins keeps the local snapshot verbatim.
	ResolutionLocalWins Resolution = "local_wins"

	// ResolutionRemoteWins keeps the remote snapshot verbatim.
	ResolutionRemoteWins Resolution = "remote_wins"

	// ResolutionAuto picks a strategy from the conflict type: remote_wins for
	// create_create, merge for concurrent_update. delete_update has no auto
	// policy and must be resolved explicitly.
	ResolutionAuto Resolution = "auto"
)

// IsValid returns true if the resolution is recognized.
func (r Resolution) IsValid() bool {
	switch r {
	case ResolutionMerge, ResolutionLocalWins, ResolutionRemoteWins, ResolutionAuto:
		return true
	default:
		return false
	}
}

func (r Resolution) String() string {
	return string(r)
}
