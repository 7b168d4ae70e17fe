package main

import (
	"context"
	"strconv"
	"time"

	"github.com/desertthunder/plsync/internal/formatter"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/urfave/cli/v3"
)

type runRow struct {
	ID               string     `json:"id"`
	Sequence         int        `json:"sequence"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	Playlists        int        `json:"playlists"`
	Unchanged        int        `json:"unchanged"`
	AutoAccepted     int        `json:"auto_accepted"`
	ManuallyAccepted int        `json:"manually_accepted"`
	Rejected         int        `json:"rejected"`
	Deferred         int        `json:"deferred"`
	SkippedLines     int        `json:"skipped_lines"`
	FatalError       string     `json:"fatal_error,omitempty"`
}

func short(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// RunsList lists recorded reconcile runs, newest first.
func (r *Runner) RunsList(ctx context.Context, cmd *cli.Command) error {
	db, _, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := repositories.NewRunRepository(db).List(map[string]any{
		"limit":  cmd.Int("limit"),
		"failed": cmd.Bool("failed"),
	})
	if err != nil {
		return err
	}

	rows := make([]runRow, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, runRow{
			ID:               run.ID(),
			Sequence:         run.Sequence,
			StartedAt:        run.StartedAt,
			CompletedAt:      run.CompletedAt,
			Playlists:        run.Playlists,
			Unchanged:        run.Unchanged,
			AutoAccepted:     run.AutoAccepted,
			ManuallyAccepted: run.ManuallyAccepted,
			Rejected:         run.Rejected,
			Deferred:         run.Deferred,
			SkippedLines:     run.SkippedLines,
			FatalError:       run.FatalError,
		})
	}

	if cmd.Bool("json") {
		return r.writeJSON(rows, true)
	}

	if len(rows) == 0 {
		r.writePlain("No runs recorded\n")
		return nil
	}

	headers := []string{"#", "Run", "Started", "Duration", "Playlists", "Unchanged", "Auto", "Manual", "Rejected", "Deferred", "Status"}
	aligns := []formatter.Alignment{
		formatter.AlignRight, formatter.AlignLeft, formatter.AlignLeft, formatter.AlignRight,
		formatter.AlignRight, formatter.AlignRight, formatter.AlignRight, formatter.AlignRight,
		formatter.AlignRight, formatter.AlignRight, formatter.AlignLeft,
	}
	table := make([][]string, 0, len(rows))
	for _, row := range rows {
		duration := "-"
		status := "running"
		if row.CompletedAt != nil {
			duration = row.CompletedAt.Sub(row.StartedAt).Round(time.Second).String()
			status = "ok"
		}
		if row.FatalError != "" {
			status = "failed: " + row.FatalError
		}
		table = append(table, []string{
			strconv.Itoa(row.Sequence),
			short(row.ID, 8),
			row.StartedAt.Local().Format("2006-01-02 15:04"),
			duration,
			strconv.Itoa(row.Playlists),
			strconv.Itoa(row.Unchanged),
			strconv.Itoa(row.AutoAccepted),
			strconv.Itoa(row.ManuallyAccepted),
			strconv.Itoa(row.Rejected),
			strconv.Itoa(row.Deferred),
			status,
		})
	}
	r.writePlain("%s\n", formatter.RenderTable(headers, table, aligns))
	return nil
}
