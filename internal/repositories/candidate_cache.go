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

// CandidateCacheRepository persists catalog search results. It implements search.CandidateCache.
//
// Rows older than the caller's max age are treated as misses; unreadable rows are deleted on read.
type CandidateCacheRepository struct {
	db  *sql.DB
	w   singleWriter
	now func() time.Time
}

// NewCandidateCacheRepository creates a new CandidateCacheRepository with the given database connection
func NewCandidateCacheRepository(db *sql.DB, lock *shared.WriteLock) *CandidateCacheRepository {
	return &CandidateCacheRepository{db: db, w: singleWriter{lock: lock}, now: time.Now}
}

// Lookup returns cached candidates for fingerprint on service fetched within maxAge.
func (r *CandidateCacheRepository) Lookup(fingerprint, service string, maxAge time.Duration) ([]models.CatalogCandidate, bool, error) {
	query := `
		SELECT payload, fetched_at
		FROM candidate_cache
		WHERE fingerprint = ? AND service = ?
	`

	var (
		payload   string
		fetchedAt time.Time
	)
	err := r.db.QueryRow(query, fingerprint, service).Scan(&payload, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to scan cached candidates: %w", err)
	}

	if maxAge > 0 && r.now().Sub(fetchedAt) > maxAge {
		return nil, false, nil
	}

	var candidates []models.CatalogCandidate
	if err := json.Unmarshal([]byte(payload), &candidates); err != nil {
		if err := r.delete(fingerprint, service); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return candidates, true, nil
}

// Store caches candidates, replacing any earlier result for the same fingerprint and service.
func (r *CandidateCacheRepository) Store(fingerprint, service, query string, candidates []models.CatalogCandidate) error {
	if fingerprint == "" || service == "" {
		return fmt.Errorf("%w: fingerprint and service are required", shared.ErrInvalidInput)
	}

	payload, err := json.Marshal(candidates)
	if err != nil {
		return fmt.Errorf("failed to encode candidates: %w", err)
	}

	stmt := `
		INSERT INTO candidate_cache (fingerprint, service, query, payload, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint, service) DO UPDATE SET
			query = excluded.query,
			payload = excluded.payload,
			fetched_at = excluded.fetched_at
	`

	return r.w.write(func() error {
		if _, err := r.db.Exec(stmt, fingerprint, service, query, string(payload), r.now().UTC()); err != nil {
			return fmt.Errorf("failed to cache candidates: %w", err)
		}
		return nil
	})
}

// Prune deletes rows older than maxAge and returns the number removed. A zero maxAge removes everything.
func (r *CandidateCacheRepository) Prune(maxAge time.Duration) (int, error) {
	cutoff := r.now().UTC().Add(-maxAge)
	if maxAge <= 0 {
		cutoff = r.now().UTC().Add(time.Hour)
	}

	var n int
	err := r.w.write(func() error {
		result, err := r.db.Exec("DELETE FROM candidate_cache WHERE fetched_at < ?", cutoff)
		if err != nil {
			return fmt.Errorf("failed to prune candidate cache: %w", err)
		}
		n, err = rowsAffected(result)
		return err
	})
	return n, err
}

// Count returns the number of cached searches.
func (r *CandidateCacheRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM candidate_cache").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count candidate cache: %w", err)
	}
	return n, nil
}

func (r *CandidateCacheRepository) delete(fingerprint, service string) error {
	return r.w.write(func() error {
		if _, err := r.db.Exec("DELETE FROM candidate_cache WHERE fingerprint = ? AND service = ?", fingerprint, service); err != nil {
			return fmt.Errorf("failed to delete cached candidates: %w", err)
		}
		return nil
	})
}
