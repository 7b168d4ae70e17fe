package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/desertthunder/plsync/internal/formatter"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/urfave/cli/v3"
)

type memoryRow struct {
	Playlist    string    `json:"playlist"`
	Fingerprint string    `json:"fingerprint"`
	Decision    string    `json:"decision"`
	CandidateID string    `json:"candidate_id,omitempty"`
	Score       float64   `json:"score"`
	Origin      string    `json:"origin,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	DecidedAt   time.Time `json:"decided_at,omitzero"`
}

// playlistKey resolves a playlist argument to the absolute path decisions are keyed by.
func playlistKey(arg string) string {
	if arg == "" {
		return ""
	}
	if abs, err := filepath.Abs(arg); err == nil {
		return abs
	}
	return filepath.Clean(arg)
}

// MemoryList lists remembered decisions, optionally for a single playlist.
//
// Corrupt rows are listed as such; they are purged the next time a run reads them.
func (r *Runner) MemoryList(ctx context.Context, cmd *cli.Command) error {
	db, lock, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	repo := repositories.NewDecisionRepository(db, lock, r.logger)
	stored, err := repo.List(playlistKey(cmd.StringArg("playlist")))
	if err != nil {
		return err
	}

	rows := make([]memoryRow, 0, len(stored))
	for _, s := range stored {
		switch rec := s.(type) {
		case repositories.ValidRecord:
			rows = append(rows, memoryRow{
				Playlist:    rec.Playlist,
				Fingerprint: rec.Fingerprint,
				Decision:    string(rec.Record.Kind),
				CandidateID: rec.Record.CandidateID,
				Score:       rec.Record.Score,
				Origin:      string(rec.Record.Origin),
				Reason:      rec.Record.Reason,
				DecidedAt:   rec.Record.DecidedAt,
			})
		case repositories.CorruptRecord:
			rows = append(rows, memoryRow{
				Playlist:    rec.Playlist,
				Fingerprint: rec.Fingerprint,
				Decision:    "corrupt",
				Reason:      rec.Err.Error(),
			})
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(rows, true)
	}

	if len(rows) == 0 {
		r.writePlain("No remembered decisions\n")
		return nil
	}

	headers := []string{"Playlist", "Fingerprint", "Decision", "Candidate", "Score", "Origin", "Decided"}
	aligns := []formatter.Alignment{
		formatter.AlignLeft, formatter.AlignLeft, formatter.AlignLeft, formatter.AlignLeft,
		formatter.AlignRight, formatter.AlignLeft, formatter.AlignLeft,
	}
	table := make([][]string, 0, len(rows))
	for _, row := range rows {
		decided := ""
		if !row.DecidedAt.IsZero() {
			decided = row.DecidedAt.Local().Format("2006-01-02 15:04")
		}
		table = append(table, []string{
			filepath.Base(row.Playlist),
			short(row.Fingerprint, 12),
			row.Decision,
			row.CandidateID,
			strconv.FormatFloat(row.Score, 'f', 1, 64),
			row.Origin,
			decided,
		})
	}
	r.writePlain("%s\n", formatter.RenderTable(headers, table, aligns))
	r.writePlain("%d decision(s)\n", len(rows))
	return nil
}

// MemoryClear forgets every decision for a playlist so its next run starts from scratch.
func (r *Runner) MemoryClear(ctx context.Context, cmd *cli.Command) error {
	playlist := playlistKey(cmd.StringArg("playlist"))
	if playlist == "" {
		return fmt.Errorf("%w: playlist is required", shared.ErrMissingArgument)
	}

	db, lock, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := repositories.NewDecisionRepository(db, lock, r.logger).Clear(playlist)
	if err != nil {
		return err
	}

	// Without stored state the next run is a full sync, so every entry is decided again.
	err = repositories.NewSyncStateRepository(db, lock).Delete(playlist)
	if err != nil && !errors.Is(err, shared.ErrRecordNotFound) {
		return err
	}

	r.logger.Info("cleared decisions", "playlist", playlist, "count", n)
	r.writePlain("✓ Forgot %d decision(s) for %s; the next run is a full sync\n", n, filepath.Base(playlist))
	return nil
}
