package models

import "time"

// SyncStats is a derived snapshot of the sync subsystem, recomputed on every
// request. It is never persisted.
type SyncStats struct {
	InProgress bool       `json:"in_progress"`
	Pending    int64      `json:"pending"`
	Failed     int64      `json:"failed"`
	Conflicts  int64      `json:"conflicts"`
	LastSync   *time.Time `json:"last_sync,omitempty"`
}
