package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/desertthunder/plsync/internal/formatter"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/desertthunder/plsync/internal/tasks"
	"github.com/desertthunder/plsync/internal/ui"
	"github.com/urfave/cli/v3"
)

// ReconcileRun resolves every entry of the given playlists, writes accepted
// tracks to the catalog and advances sync state for fully resolved playlists.
func (r *Runner) ReconcileRun(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("%w: at least one playlist or directory is required", shared.ErrMissingArgument)
	}

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	db, lock, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	engine, err := r.newEngine(ctx, db, lock, cmd.Bool("no-review"), cancel)
	if err != nil {
		return err
	}

	opts := tasks.RunOptions{
		Parallel:  cmd.Int("parallel"),
		DryRun:    cmd.Bool("dry-run"),
		ForceFull: cmd.Bool("force-full"),
	}
	asJSON := cmd.Bool("json")

	r.logger.Info("starting reconcile run", "paths", len(paths), "parallel", opts.Parallel, "dry_run", opts.DryRun)

	// Create progress channel and goroutine to handle updates
	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			if asJSON {
				continue
			}
			r.printProgress(update)
		}
	}()

	summary, runErr := engine.Run(ctx, progressCh, paths, opts)
	close(progressCh)
	<-done

	if summary == nil {
		return runErr
	}

	if asJSON {
		data, err := formatter.ExportToJSON(summary, formatter.Rows(summary, cmd.Bool("report-all")))
		if err != nil {
			return err
		}
		r.writePlain("%s\n", data)
	} else {
		r.printSummary(summary, opts)
	}

	if path := cmd.String("report"); path != "" {
		written, err := formatter.WriteReport(summary, path, cmd.Bool("report-all"))
		if err != nil {
			return err
		}
		r.logger.Info("report written", "path", written)
		if !asJSON {
			r.writePlain("Report saved to %s\n", written)
		}
	}

	if errors.Is(runErr, context.Canceled) && parent.Err() == nil {
		return fmt.Errorf("%w: decisions made so far are remembered", ui.ErrReviewAborted)
	}
	return runErr
}

func (r *Runner) printProgress(update tasks.ProgressUpdate) {
	switch update.Phase {
	case tasks.Discover:
		r.writePlain("📂 %s\n", update.Message)
	case tasks.Plan:
		r.writePlain("\n📋 %s\n", update.Message)
	case tasks.Resolve:
		if d, ok := update.Data.(models.MatchDecision); ok && d.Kind != models.AutoAccepted {
			r.writePlain("   [%d/%d] %s\n", update.Step, update.Total, ui.Styles().Decision(string(d.Kind)))
		}
	case tasks.Write:
		r.writePlain("📝 %s\n", update.Message)
	case tasks.Complete:
		r.writePlain("%s\n", update.Message)
	}
}

func (r *Runner) printSummary(summary *tasks.RunSummary, opts tasks.RunOptions) {
	title := "Reconcile Complete!"
	if opts.DryRun {
		title = "Reconcile Complete (dry run)"
	}

	r.writePlain("\n")
	r.writePlainHeader(title)
	r.writePlain("%s\n", formatter.SummaryTable(summary))
	r.writePlain("Accepted: %d auto, %d manual\n", summary.AutoAccepted, summary.ManuallyAccepted)
	r.writePlain("Rejected: %d  Deferred: %d  Skipped lines: %d\n", summary.Rejected, summary.Deferred, summary.SkippedLines)
	r.writePlain("Catalog queries: %d  Duration: %s\n", summary.Queries, summary.CompletedAt.Sub(summary.StartedAt).Round(time.Millisecond))

	if rows := formatter.Rows(summary, false); len(rows) > 0 {
		r.writePlain("\nNeeds attention (%d):\n", len(rows))
		for _, row := range rows {
			detail := row.Reason
			if row.Error != "" {
				detail = row.Error
			}
			r.writePlain("  - %s:%d %s - %s: %s (%s)\n", row.Playlist, row.Line, row.Artist, row.Title, row.Kind, detail)
		}
	}

	if summary.FatalError != nil {
		r.writePlain("\n✗ Run stopped: %v\n", summary.FatalError)
	}
}

type statusOutput struct {
	Path       string     `json:"path"`
	Name       string     `json:"name"`
	Entries    int        `json:"entries"`
	Skipped    int        `json:"skipped"`
	Mode       string     `json:"mode"`
	Edits      int        `json:"edits"`
	Reason     string     `json:"reason"`
	LastSynced *time.Time `json:"last_synced,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// ReconcileStatus reports the sync plan each playlist would get without searching anything.
func (r *Runner) ReconcileStatus(ctx context.Context, cmd *cli.Command) error {
	paths := cmd.Args().Slice()
	if len(paths) == 0 {
		return fmt.Errorf("%w: at least one playlist or directory is required", shared.ErrMissingArgument)
	}

	db, lock, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	engine := tasks.NewReconcileEngine(tasks.EngineConfig{
		Sync:   tasks.NewSyncController(repositories.NewSyncStateRepository(db, lock), r.config.Sync, r.logger),
		Logger: r.logger,
	})

	statuses, err := engine.Status(ctx, paths)
	if err != nil {
		return err
	}

	out := make([]statusOutput, 0, len(statuses))
	for _, s := range statuses {
		o := statusOutput{
			Path:    s.Path,
			Name:    s.Name,
			Entries: s.Entries,
			Skipped: s.Skipped,
			Mode:    s.Plan.Mode.String(),
			Edits:   s.Plan.Edits(),
			Reason:  s.Plan.Reason,
		}
		if s.Plan.Previous != nil {
			synced := s.Plan.Previous.SyncedAt
			o.LastSynced = &synced
		}
		if s.Err != nil {
			o.Error = s.Err.Error()
		}
		out = append(out, o)
	}

	if cmd.Bool("json") {
		return r.writeJSON(out, true)
	}

	headers := []string{"Playlist", "Entries", "Skipped", "Sync", "Edits", "Last Synced", "Reason"}
	aligns := []formatter.Alignment{
		formatter.AlignLeft, formatter.AlignRight, formatter.AlignRight, formatter.AlignLeft,
		formatter.AlignRight, formatter.AlignLeft, formatter.AlignLeft,
	}
	rows := make([][]string, 0, len(out))
	for _, o := range out {
		synced := "never"
		if o.LastSynced != nil {
			synced = o.LastSynced.Local().Format("2006-01-02 15:04")
		}
		reason := o.Reason
		if o.Error != "" {
			reason = o.Error
		}
		rows = append(rows, []string{o.Name, strconv.Itoa(o.Entries), strconv.Itoa(o.Skipped), o.Mode, strconv.Itoa(o.Edits), synced, reason})
	}
	r.writePlain("%s\n", formatter.RenderTable(headers, rows, aligns))
	return nil
}
