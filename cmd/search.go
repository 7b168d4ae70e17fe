package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/desertthunder/plsync/internal/decision"
	"github.com/desertthunder/plsync/internal/formatter"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/normalize"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/scoring"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/urfave/cli/v3"
)

type searchOutput struct {
	Query      string                   `json:"query"`
	Cached     bool                     `json:"cached"`
	Exhausted  bool                     `json:"exhausted"`
	Candidates []models.ScoredCandidate `json:"candidates"`
	Decision   models.DecisionKind      `json:"decision"`
	Reason     string                   `json:"reason"`
}

// Search scores catalog candidates for one artist and title and shows what an
// unattended run would decide. Nothing is remembered.
func (r *Runner) Search(ctx context.Context, cmd *cli.Command) error {
	artist := cmd.StringArg("artist")
	title := cmd.StringArg("title")
	if artist == "" || title == "" {
		return fmt.Errorf("%w: artist and title are required", shared.ErrMissingArgument)
	}

	entry := models.LocalTrackEntry{Artist: artist, Title: title, DurationSec: cmd.Int("duration")}
	key := normalize.Normalize(artist, title)
	if key.IsZero() {
		return fmt.Errorf("%w: nothing searchable in %q - %q", shared.ErrInvalidInput, artist, title)
	}

	var cache *repositories.CandidateCacheRepository
	if !cmd.Bool("no-cache") {
		db, lock, err := r.openDatabase()
		if err != nil {
			return err
		}
		defer db.Close()
		cache = repositories.NewCandidateCacheRepository(db, lock)
	}

	client, err := r.newSearchClient(cache)
	if err != nil {
		return err
	}

	r.logger.Debug("searching catalog", "query", key.Query())
	outcome, err := client.Search(ctx, key)
	if err != nil {
		return err
	}

	scorer := r.newScorer()
	scored := scorer.ScoreTarget(scoring.NewTarget(entry, key), outcome.Candidates)

	preview := decision.New(decision.Options{Thresholds: decision.ThresholdsFromConfig(r.config), Scorer: scorer, Logger: r.logger})
	d, err := preview.Decide(ctx, decision.Subject{Entry: entry, Key: key, Candidates: scored})
	if err != nil {
		return err
	}

	out := searchOutput{
		Query:      key.Query(),
		Cached:     outcome.Cached,
		Exhausted:  outcome.Exhausted,
		Candidates: scored,
		Decision:   d.Kind,
		Reason:     d.Reason,
	}
	if outcome.Exhausted && outcome.LastErr != nil {
		out.Reason = fmt.Sprintf("search retries exhausted: %v", outcome.LastErr)
	}
	if out.Candidates == nil {
		out.Candidates = []models.ScoredCandidate{}
	}

	if cmd.Bool("json") {
		return r.writeJSON(out, true)
	}

	source := "catalog"
	if outcome.Cached {
		source = "cache"
	}
	r.writePlain("Query: %s (%s)\n", out.Query, source)

	headers := []string{"#", "Score", "ID", "Artists", "Title", "Album", "Duration"}
	aligns := []formatter.Alignment{
		formatter.AlignRight, formatter.AlignRight, formatter.AlignLeft, formatter.AlignLeft,
		formatter.AlignLeft, formatter.AlignLeft, formatter.AlignRight,
	}
	rows := make([][]string, 0, len(scored))
	for i, c := range scored {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			strconv.FormatFloat(c.Score, 'f', 1, 64),
			c.ID,
			c.ArtistLine(),
			c.Title,
			c.Album,
			shared.FormatDuration(c.DurationSec),
		})
	}
	if len(rows) > 0 {
		r.writePlain("%s\n", formatter.RenderTable(headers, rows, aligns))
	}

	r.writePlain("Decision: %s (%s)\n", out.Decision, out.Reason)
	return nil
}
