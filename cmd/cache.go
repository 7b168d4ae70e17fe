package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// CachePrune deletes cached search results older than --max-age hours,
// defaulting to the configured cache TTL.
func (r *Runner) CachePrune(ctx context.Context, cmd *cli.Command) error {
	maxAge := r.config.Search.CacheTTL()
	if hours := cmd.Int("max-age"); hours > 0 {
		maxAge = time.Duration(hours) * time.Hour
	}
	if maxAge <= 0 {
		return fmt.Errorf("%w: cache is disabled; pass --max-age", shared.ErrInvalidArgument)
	}

	db, lock, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	cache := repositories.NewCandidateCacheRepository(db, lock)
	pruned, err := cache.Prune(maxAge)
	if err != nil {
		return err
	}
	remaining, err := cache.Count()
	if err != nil {
		return err
	}

	r.logger.Info("pruned candidate cache", "max_age", maxAge, "pruned", pruned, "remaining", remaining)
	r.writePlain("✓ Pruned %d cached search(es) older than %s, %d remaining\n", pruned, maxAge, remaining)
	return nil
}
