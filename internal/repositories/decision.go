package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

// StoredRecord is a session memory row as read from disk: either a [ValidRecord] or a [CorruptRecord].
type StoredRecord interface {
	StoredKey() string
}

// ValidRecord is a row whose payload decoded and validated.
type ValidRecord struct {
	Key         string
	Playlist    string
	Fingerprint string
	Record      models.DecisionRecord
	UpdatedAt   time.Time
}

// CorruptRecord is a row whose payload could not be trusted.
type CorruptRecord struct {
	Key         string
	Playlist    string
	Fingerprint string
	Payload     string
	Err         error
}

func (v ValidRecord) StoredKey() string   { return v.Key }
func (c CorruptRecord) StoredKey() string { return c.Key }

// DecisionKey returns the session memory key for a fingerprint within a playlist.
func DecisionKey(playlist, fingerprint string) string {
	return shared.HashParts(playlist, fingerprint)
}

// DecisionRepository is the session memory store. It implements decision.Memory.
//
// Corrupt rows are detected one at a time on read; a corrupt row never
// affects its neighbours.
type DecisionRepository struct {
	db     *sql.DB
	w      singleWriter
	logger *log.Logger
	now    func() time.Time
}

// NewDecisionRepository creates a DecisionRepository. lock may be nil for in-memory databases.
func NewDecisionRepository(db *sql.DB, lock *shared.WriteLock, logger *log.Logger) *DecisionRepository {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &DecisionRepository{
		db:     db,
		w:      singleWriter{lock: lock},
		logger: shared.WithLogger(logger, "component", "memory"),
		now:    time.Now,
	}
}

// Put stores rec, replacing any earlier decision for the same key.
func (r *DecisionRepository) Put(playlist, fingerprint string, rec models.DecisionRecord) error {
	if playlist == "" || fingerprint == "" {
		return fmt.Errorf("%w: playlist and fingerprint are required", shared.ErrInvalidInput)
	}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}

	query := `
		INSERT INTO decisions (key, playlist, fingerprint, payload, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at
	`

	return r.w.write(func() error {
		if _, err := r.db.Exec(query, DecisionKey(playlist, fingerprint), playlist, fingerprint, string(payload), r.now().UTC()); err != nil {
			return fmt.Errorf("failed to store decision: %w", err)
		}
		return nil
	})
}

// Get returns the stored row for a fingerprint, or [shared.ErrRecordNotFound].
func (r *DecisionRepository) Get(playlist, fingerprint string) (StoredRecord, error) {
	query := `
		SELECT key, playlist, fingerprint, payload, updated_at
		FROM decisions
		WHERE key = ?
	`

	return r.scanOne(r.db.QueryRow(query, DecisionKey(playlist, fingerprint)))
}

// Lookup returns the decision for a fingerprint. Corrupt rows are logged, purged and reported as missing.
func (r *DecisionRepository) Lookup(playlist, fingerprint string) (models.DecisionRecord, bool, error) {
	stored, err := r.Get(playlist, fingerprint)
	if errors.Is(err, shared.ErrRecordNotFound) {
		return models.DecisionRecord{}, false, nil
	}
	if err != nil {
		return models.DecisionRecord{}, false, err
	}

	switch rec := stored.(type) {
	case ValidRecord:
		return rec.Record, true, nil
	case CorruptRecord:
		r.logger.Warn("dropping corrupt decision", "playlist", rec.Playlist, "fingerprint", rec.Fingerprint, "error", rec.Err)
		if err := r.Purge(rec.Key); err != nil {
			r.logger.Error("failed to purge corrupt decision", "key", rec.Key, "error", err)
		}
	}
	return models.DecisionRecord{}, false, nil
}

// List returns every stored row for playlist, or for all playlists when playlist is empty.
func (r *DecisionRepository) List(playlist string) ([]StoredRecord, error) {
	query := `
		SELECT key, playlist, fingerprint, payload, updated_at
		FROM decisions
	`

	args := []any{}
	if playlist != "" {
		query += " WHERE playlist = ?"
		args = append(args, playlist)
	}
	query += " ORDER BY playlist ASC, updated_at ASC, key ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var records []StoredRecord
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

// Clear removes every decision for playlist and returns the number removed.
func (r *DecisionRepository) Clear(playlist string) (int, error) {
	if playlist == "" {
		return 0, fmt.Errorf("%w: playlist is required", shared.ErrMissingArgument)
	}

	var n int
	err := r.w.write(func() error {
		result, err := r.db.Exec("DELETE FROM decisions WHERE playlist = ?", playlist)
		if err != nil {
			return fmt.Errorf("failed to clear decisions: %w", err)
		}
		n, err = rowsAffected(result)
		return err
	})
	return n, err
}

// Purge removes a single row by key.
func (r *DecisionRepository) Purge(key string) error {
	return r.w.write(func() error {
		if _, err := r.db.Exec("DELETE FROM decisions WHERE key = ?", key); err != nil {
			return fmt.Errorf("failed to purge decision: %w", err)
		}
		return nil
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanOne scans a single row into a [StoredRecord]
func (r *DecisionRepository) scanOne(row *sql.Row) (StoredRecord, error) {
	rec, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: decision", shared.ErrRecordNotFound)
	}
	return rec, err
}

func (r *DecisionRepository) scan(row rowScanner) (StoredRecord, error) {
	var (
		key         string
		playlist    string
		fingerprint string
		payload     string
		updatedAt   time.Time
	)

	if err := row.Scan(&key, &playlist, &fingerprint, &payload, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan decision: %w", err)
	}

	rec, err := decodeDecision(payload)
	if err != nil {
		return CorruptRecord{Key: key, Playlist: playlist, Fingerprint: fingerprint, Payload: payload, Err: err}, nil
	}
	return ValidRecord{Key: key, Playlist: playlist, Fingerprint: fingerprint, Record: rec, UpdatedAt: updatedAt}, nil
}

func decodeDecision(payload string) (models.DecisionRecord, error) {
	var rec models.DecisionRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return models.DecisionRecord{}, fmt.Errorf("%w: %v", shared.ErrCorruptRecord, err)
	}
	if err := rec.Validate(); err != nil {
		return models.DecisionRecord{}, fmt.Errorf("%w: %v", shared.ErrCorruptRecord, err)
	}
	return rec, nil
}
