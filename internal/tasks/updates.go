package tasks

import (
	"fmt"
	"path/filepath"

	"github.com/desertthunder/plsync/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Discover Phase = iota
	Parse
	Plan
	Resolve
	Write
	Advance
	Complete
)

func (p Phase) String() string {
	switch p {
	case Discover:
		return "discover"
	case Parse:
		return "parse"
	case Plan:
		return "plan"
	case Resolve:
		return "resolve"
	case Write:
		return "write"
	case Advance:
		return "advance"
	case Complete:
		return "complete"
	default:
		return ""
	}
}

func discoverUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Discover,
		Step:    total,
		Total:   total,
		Message: fmt.Sprintf("Found %d playlist(s)", total),
	}
}

func parseUpdate(path string, entries, skipped int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Parse,
		Step:    entries,
		Total:   entries + skipped,
		Message: fmt.Sprintf("Parsed %s: %d entries, %d skipped", filepath.Base(path), entries, skipped),
	}
}

func planUpdate(path string, plan SyncPlan) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Plan,
		Message: fmt.Sprintf("%s: %s sync (%s)", filepath.Base(path), plan.Mode, plan.Reason),
		Data:    plan,
	}
}

func resolveUpdate(step, total int, entry models.LocalTrackEntry, d models.MatchDecision) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Resolve,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s - %s: %s", step, total, entry.Artist, entry.Title, d.Kind),
		Data:    d,
	}
}

func writeUpdate(name string, tracks int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Write,
		Step:    tracks,
		Total:   tracks,
		Message: fmt.Sprintf("Writing %d track(s) to %s...", tracks, name),
	}
}

func advanceUpdate(path string, advanced bool) ProgressUpdate {
	msg := fmt.Sprintf("%s: sync state advanced", filepath.Base(path))
	if !advanced {
		msg = fmt.Sprintf("%s: sync state kept (unresolved entries)", filepath.Base(path))
	}
	return ProgressUpdate{Phase: Advance, Message: msg}
}

func playlistCompleteUpdate(step, total int, res *PlaylistResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Complete,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s", step, total, res.Name),
		Data:    res,
	}
}

func playlistFailedUpdate(step, total int, path string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Complete,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, filepath.Base(path), err),
	}
}
