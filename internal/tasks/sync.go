package tasks

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

const (
	defaultDeltaRatio     = 0.25
	defaultDeltaMinBudget = 5
)

// SyncMode is the amount of work a playlist needs.
type SyncMode int

const (
	FullSync SyncMode = iota
	Delta
	Unchanged
)

func (m SyncMode) String() string {
	switch m {
	case Unchanged:
		return "unchanged"
	case Delta:
		return "delta"
	default:
		return "full"
	}
}

// SyncPlan is the outcome of [SyncController.ShouldSync].
//
// For Delta plans Added holds positions in the new entry list whose
// fingerprint was not in the stored list, and Removed holds stored
// fingerprints missing from the new list. Both are multiset differences.
type SyncPlan struct {
	Mode     SyncMode
	Hash     string
	Added    []int
	Removed  []string
	Previous *models.PlaylistSyncState
	Reason   string
}

// Changed reports whether the entry at position must be treated as new.
func (p SyncPlan) Changed(position int) bool {
	switch p.Mode {
	case Unchanged:
		return false
	case Delta:
		for _, pos := range p.Added {
			if pos == position {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// Edits returns the multiset edit count of a Delta plan.
func (p SyncPlan) Edits() int { return len(p.Added) + len(p.Removed) }

// StateStore persists [models.PlaylistSyncState] values.
type StateStore interface {
	Get(path string) (*models.PlaylistSyncState, error)
	Save(state *models.PlaylistSyncState) error
}

// SyncController decides whether a playlist changed since its last successful sync.
type SyncController struct {
	store     StateStore
	ratio     float64
	minBudget int
	logger    *log.Logger
	now       func() time.Time
}

// NewSyncController creates a SyncController with the edit budget from cfg.
func NewSyncController(store StateStore, cfg shared.SyncConfig, logger *log.Logger) *SyncController {
	ratio := cfg.DeltaBudgetRatio
	if ratio <= 0 {
		ratio = defaultDeltaRatio
	}
	minBudget := cfg.DeltaMinBudget
	if minBudget <= 0 {
		minBudget = defaultDeltaMinBudget
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &SyncController{
		store:     store,
		ratio:     ratio,
		minBudget: minBudget,
		logger:    shared.WithLogger(logger, "component", "sync"),
		now:       time.Now,
	}
}

// Budget returns the largest edit count still synced as a Delta for a stored list of oldLen entries.
func (c *SyncController) Budget(oldLen int) int {
	return max(c.minBudget, int(math.Ceil(c.ratio*float64(oldLen))))
}

// ShouldSync compares the playlist's current keys with its stored state.
func (c *SyncController) ShouldSync(ctx context.Context, path string, keys []models.NormalizedKey) (SyncPlan, error) {
	if err := ctx.Err(); err != nil {
		return SyncPlan{}, err
	}

	fingerprints := Fingerprints(keys)
	plan := SyncPlan{Mode: FullSync, Hash: ContentHash(fingerprints)}

	state, err := c.store.Get(path)
	switch {
	case errors.Is(err, shared.ErrRecordNotFound):
		plan.Reason = "first sync"
		return plan, nil
	case errors.Is(err, shared.ErrSyncStateCorrupt):
		c.logger.Warn("sync state corrupt, running full sync", "playlist", path, "error", err)
		plan.Reason = "stored state corrupt"
		return plan, nil
	case err != nil:
		return SyncPlan{}, fmt.Errorf("failed to load sync state: %w", err)
	}

	if ContentHash(state.Fingerprints) != state.ContentHash {
		c.logger.Warn("sync state hash mismatch, running full sync", "playlist", path)
		plan.Reason = "stored state corrupt"
		return plan, nil
	}

	plan.Previous = state
	if plan.Hash == state.ContentHash {
		plan.Mode = Unchanged
		plan.Reason = "content hash unchanged"
		return plan, nil
	}

	plan.Added, plan.Removed = diffFingerprints(state.Fingerprints, fingerprints)
	if budget := c.Budget(len(state.Fingerprints)); plan.Edits() > budget {
		plan.Reason = fmt.Sprintf("%d edits exceed budget of %d", plan.Edits(), budget)
		plan.Added, plan.Removed = nil, nil
		return plan, nil
	}

	plan.Mode = Delta
	plan.Reason = fmt.Sprintf("%d added, %d removed", len(plan.Added), len(plan.Removed))
	return plan, nil
}

// Advance records keys as the playlist's last successful sync.
func (c *SyncController) Advance(ctx context.Context, path string, keys []models.NormalizedKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fingerprints := Fingerprints(keys)
	state := &models.PlaylistSyncState{
		PlaylistPath: path,
		ContentHash:  ContentHash(fingerprints),
		Fingerprints: fingerprints,
		TrackCount:   len(fingerprints),
		SyncedAt:     c.now().UTC(),
	}
	if err := c.store.Save(state); err != nil {
		return fmt.Errorf("failed to advance sync state: %w", err)
	}
	return nil
}

// Fingerprints returns the ordered fingerprints of keys.
func Fingerprints(keys []models.NormalizedKey) []string {
	fps := make([]string, len(keys))
	for i, k := range keys {
		fps[i] = k.Fingerprint()
	}
	return fps
}

// ContentHash hashes an ordered fingerprint list. Reordering changes the hash.
func ContentHash(fingerprints []string) string {
	return shared.HashParts(fingerprints...)
}

func diffFingerprints(old, current []string) (added []int, removed []string) {
	remaining := make(map[string]int, len(old))
	for _, fp := range old {
		remaining[fp]++
	}

	for i, fp := range current {
		if remaining[fp] > 0 {
			remaining[fp]--
			continue
		}
		added = append(added, i)
	}

	for _, fp := range old {
		if remaining[fp] > 0 {
			remaining[fp]--
			removed = append(removed, fp)
		}
	}
	return added, removed
}
