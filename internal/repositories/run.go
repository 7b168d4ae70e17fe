package repositories

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

// RunRepository implements models.Repository[*models.RunRecord] for run history.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run into the database with generated ID and sequence
func (r *RunRepository) Create(run *models.RunRecord) error {
	sequence, err := NextSequence(r.db, "reconcile_runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	if run.ID() == "" {
		run.SetID(shared.GenerateID())
	}
	run.Sequence = sequence

	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO reconcile_runs (
			id, sequence, started_at, completed_at, playlists, unchanged,
			auto_accepted, manually_accepted, rejected, deferred,
			skipped_lines, fatal_error
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		run.ID(),
		run.Sequence,
		run.StartedAt,
		run.CompletedAt,
		run.Playlists,
		run.Unchanged,
		run.AutoAccepted,
		run.ManuallyAccepted,
		run.Rejected,
		run.Deferred,
		run.SkippedLines,
		nullString(run.FatalError),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// Get retrieves a run by ID
func (r *RunRepository) Get(id string) (*models.RunRecord, error) {
	query := `
		SELECT
			id, sequence, started_at, completed_at, playlists, unchanged,
			auto_accepted, manually_accepted, rejected, deferred,
			skipped_lines, fatal_error
		FROM reconcile_runs
		WHERE id = ?
	`

	run, err := scanRun(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", shared.ErrRecordNotFound, id)
	}
	return run, err
}

// Update modifies an existing run in the database
func (r *RunRepository) Update(run *models.RunRecord) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		UPDATE reconcile_runs
		SET completed_at = ?, playlists = ?, unchanged = ?, auto_accepted = ?,
			manually_accepted = ?, rejected = ?, deferred = ?, skipped_lines = ?,
			fatal_error = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query,
		run.CompletedAt,
		run.Playlists,
		run.Unchanged,
		run.AutoAccepted,
		run.ManuallyAccepted,
		run.Rejected,
		run.Deferred,
		run.SkippedLines,
		nullString(run.FatalError),
		run.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: run %s", shared.ErrRecordNotFound, run.ID())
	}

	return nil
}

// Delete removes a run by ID
func (r *RunRepository) Delete(id string) error {
	result, err := r.db.Exec("DELETE FROM reconcile_runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: run %s", shared.ErrRecordNotFound, id)
	}

	return nil
}

// List retrieves runs newest first. Supported criteria: "limit" (int) and "failed" (bool).
func (r *RunRepository) List(criteria map[string]any) ([]*models.RunRecord, error) {
	query := `
		SELECT
			id, sequence, started_at, completed_at, playlists, unchanged,
			auto_accepted, manually_accepted, rejected, deferred,
			skipped_lines, fatal_error
		FROM reconcile_runs
	`

	args := []any{}

	if failed, ok := criteria["failed"].(bool); ok && failed {
		query += " WHERE fatal_error IS NOT NULL"
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return runs, nil
}

func scanRun(row rowScanner) (*models.RunRecord, error) {
	var (
		id          string
		run         models.RunRecord
		completedAt sql.NullTime
		fatalError  sql.NullString
	)

	err := row.Scan(
		&id,
		&run.Sequence,
		&run.StartedAt,
		&completedAt,
		&run.Playlists,
		&run.Unchanged,
		&run.AutoAccepted,
		&run.ManuallyAccepted,
		&run.Rejected,
		&run.Deferred,
		&run.SkippedLines,
		&fatalError,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run.SetID(id)
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	run.FatalError = fatalError.String

	return &run, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Ensure interface compliance
var _ models.Repository[*models.RunRecord] = (*RunRepository)(nil)
