package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

// SyncStateRepository persists the last successful sync of each playlist file.
type SyncStateRepository struct {
	db *sql.DB
	w  singleWriter
}

// NewSyncStateRepository creates a new SyncStateRepository with the given database connection
func NewSyncStateRepository(db *sql.DB, lock *shared.WriteLock) *SyncStateRepository {
	return &SyncStateRepository{db: db, w: singleWriter{lock: lock}}
}

// Get returns the state for path, [shared.ErrRecordNotFound] when the playlist was never synced,
// or [shared.ErrSyncStateCorrupt] when the stored fingerprints cannot be decoded.
func (r *SyncStateRepository) Get(path string) (*models.PlaylistSyncState, error) {
	query := `
		SELECT playlist_path, content_hash, fingerprints, track_count, synced_at
		FROM sync_states
		WHERE playlist_path = ?
	`

	state, err := scanSyncState(r.db.QueryRow(query, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: sync state for %s", shared.ErrRecordNotFound, path)
	}
	return state, err
}

// Save inserts or replaces the state for state.PlaylistPath.
func (r *SyncStateRepository) Save(state *models.PlaylistSyncState) error {
	if state.PlaylistPath == "" || state.ContentHash == "" {
		return fmt.Errorf("%w: sync state needs a path and a hash", shared.ErrInvalidInput)
	}

	fingerprints, err := json.Marshal(state.Fingerprints)
	if err != nil {
		return fmt.Errorf("failed to encode fingerprints: %w", err)
	}
	if state.SyncedAt.IsZero() {
		state.SyncedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO sync_states (playlist_path, content_hash, fingerprints, track_count, synced_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(playlist_path) DO UPDATE SET
			content_hash = excluded.content_hash,
			fingerprints = excluded.fingerprints,
			track_count = excluded.track_count,
			synced_at = excluded.synced_at
	`

	return r.w.write(func() error {
		_, err := r.db.Exec(query, state.PlaylistPath, state.ContentHash, string(fingerprints), state.TrackCount, state.SyncedAt)
		if err != nil {
			return fmt.Errorf("failed to save sync state: %w", err)
		}
		return nil
	})
}

// Delete removes the state for path so the next run performs a full sync.
func (r *SyncStateRepository) Delete(path string) error {
	return r.w.write(func() error {
		result, err := r.db.Exec("DELETE FROM sync_states WHERE playlist_path = ?", path)
		if err != nil {
			return fmt.Errorf("failed to delete sync state: %w", err)
		}
		n, err := rowsAffected(result)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: sync state for %s", shared.ErrRecordNotFound, path)
		}
		return nil
	})
}

func scanSyncState(row rowScanner) (*models.PlaylistSyncState, error) {
	var (
		state        models.PlaylistSyncState
		fingerprints string
	)

	err := row.Scan(&state.PlaylistPath, &state.ContentHash, &fingerprints, &state.TrackCount, &state.SyncedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan sync state: %w", err)
	}

	if err := json.Unmarshal([]byte(fingerprints), &state.Fingerprints); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrSyncStateCorrupt, state.PlaylistPath, err)
	}
	return &state, nil
}
