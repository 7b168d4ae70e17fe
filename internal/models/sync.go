package models

import (
	"fmt"
	"time"
)

// PlaylistSyncState is the last successful reconciliation of one playlist file.
type PlaylistSyncState struct {
	PlaylistPath string
	ContentHash  string
	Fingerprints []string // ordered fingerprints of the synced entries
	TrackCount   int
	SyncedAt     time.Time
}

// RunRecord is a persisted reconcile run. It implements [Model].
type RunRecord struct {
	id               string
	Sequence         int
	StartedAt        time.Time
	CompletedAt      *time.Time
	Playlists        int
	Unchanged        int
	AutoAccepted     int
	ManuallyAccepted int
	Rejected         int
	Deferred         int
	SkippedLines     int
	FatalError       string
}

// NewRunRecord starts a run record at the given time.
func NewRunRecord(startedAt time.Time) *RunRecord {
	return &RunRecord{StartedAt: startedAt}
}

func (r *RunRecord) ID() string           { return r.id }
func (r *RunRecord) SetID(id string)      { r.id = id }
func (r *RunRecord) CreatedAt() time.Time { return r.StartedAt }

func (r *RunRecord) UpdatedAt() time.Time {
	if r.CompletedAt != nil {
		return *r.CompletedAt
	}
	return r.StartedAt
}

// Validate checks that counts are non-negative and the run has a start time.
func (r *RunRecord) Validate() error {
	if r.StartedAt.IsZero() {
		return fmt.Errorf("run has no start time")
	}
	for name, n := range map[string]int{
		"playlists":         r.Playlists,
		"unchanged":         r.Unchanged,
		"auto_accepted":     r.AutoAccepted,
		"manually_accepted": r.ManuallyAccepted,
		"rejected":          r.Rejected,
		"deferred":          r.Deferred,
		"skipped_lines":     r.SkippedLines,
	} {
		if n < 0 {
			return fmt.Errorf("negative %s count", name)
		}
	}
	return nil
}
