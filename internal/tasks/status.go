package tasks

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/desertthunder/plsync/internal/parser"
	"github.com/desertthunder/plsync/internal/shared"
)

// PlaylistStatus is the sync plan a run would use for one playlist.
type PlaylistStatus struct {
	Path    string
	Name    string
	Entries int
	Skipped int
	Plan    SyncPlan
	Err     error
}

// Status parses every playlist under paths and reports its sync plan.
//
// Nothing is searched, decided or recorded. Per-playlist failures are
// reported in the status rather than returned.
func (e *ReconcileEngine) Status(ctx context.Context, paths []string) ([]PlaylistStatus, error) {
	if e.sync == nil {
		return nil, fmt.Errorf("%w: engine is missing sync", shared.ErrServiceUnavailable)
	}

	files, err := expandPaths(paths)
	if err != nil {
		return nil, err
	}

	statuses := make([]PlaylistStatus, 0, len(files))
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return statuses, err
		}

		status := PlaylistStatus{Path: path, Name: filepath.Base(path)}
		parsed, err := parser.ParseFile(path)
		if err != nil {
			status.Err = err
			statuses = append(statuses, status)
			continue
		}
		status.Name = parsed.Name
		status.Entries = len(parsed.Entries)
		status.Skipped = parsed.Skipped

		status.Plan, status.Err = e.sync.ShouldSync(ctx, path, EntryKeys(parsed.Entries))
		statuses = append(statuses, status)
	}
	return statuses, nil
}
