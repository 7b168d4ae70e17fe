package tasks

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/plsync/internal/decision"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/normalize"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/scoring"
	"github.com/desertthunder/plsync/internal/search"
	"github.com/desertthunder/plsync/internal/shared"
	tu "github.com/desertthunder/plsync/internal/testing"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

type harness struct {
	catalog   *tu.FakeCatalog
	writer    *tu.FakeWriter
	client    *search.Client
	decisions *repositories.DecisionRepository
	states    *repositories.SyncStateRepository
	runs      *repositories.RunRepository
	engine    *ReconcileEngine
	dir       string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := setupTestDB(t)
	h := &harness{
		catalog:   tu.NewFakeCatalog(),
		writer:    &tu.FakeWriter{},
		decisions: repositories.NewDecisionRepository(db, nil, nil),
		states:    repositories.NewSyncStateRepository(db, nil),
		runs:      repositories.NewRunRepository(db),
		dir:       t.TempDir(),
	}

	h.client = search.NewClient(h.catalog, search.NewScheduler(4, 0), search.Options{
		Backoff: search.Backoff{Base: time.Millisecond, Max: 2 * time.Millisecond, Multiplier: 2, MaxAttempts: 3},
	})
	policy := decision.New(decision.Options{
		Thresholds: decision.DefaultThresholds(),
		Memory:     h.decisions,
	})
	h.engine = NewReconcileEngine(EngineConfig{
		Search: h.client,
		Scorer: scoring.New(scoring.DefaultOptions()),
		Policy: policy,
		Sync:   NewSyncController(h.states, shared.SyncConfig{}, nil),
		Writer: h.writer,
		Runs:   h.runs,
	})
	return h
}

// withPolicy rebuilds the engine around a policy built from opts.
func (h *harness) withPolicy(opts decision.Options) {
	h.engine = NewReconcileEngine(EngineConfig{
		Search: h.client,
		Scorer: scoring.New(scoring.DefaultOptions()),
		Policy: decision.New(opts),
		Sync:   NewSyncController(h.states, shared.SyncConfig{}, nil),
		Writer: h.writer,
		Runs:   h.runs,
	})
}

// track registers an exact catalog match for artist/title.
func (h *harness) track(id, artist, title string) {
	h.catalog.Add(normalize.Normalize(artist, title).Query(), models.CatalogCandidate{
		ID:      id,
		Artists: []string{artist},
		Title:   title,
	})
}

func (h *harness) query(artist, title string) string {
	return normalize.Normalize(artist, title).Query()
}

func (h *harness) playlist(t *testing.T, name string, lines ...string) string {
	t.Helper()
	return tu.WritePlaylist(t, h.dir, name, lines...)
}

func kinds(r *PlaylistResult) []models.DecisionKind {
	out := make([]models.DecisionKind, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = e.Decision.Kind
	}
	return out
}

func TestReconcileEngineRunPlaylist(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves entries in source order and advances", func(t *testing.T) {
		h := newHarness(t)
		h.track("q1", "Queen", "Bohemian Rhapsody")
		h.track("d1", "Daft Punk", "One More Time")
		h.track("b1", "Bjork", "Joga")
		h.catalog.Delay = 2 * time.Millisecond

		path := h.playlist(t, "road.txt",
			"Queen - Bohemian Rhapsody",
			"Daft Punk - One More Time",
			"Björk - Jóga",
		)

		res, err := h.engine.RunPlaylist(ctx, nil, path, RunOptions{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if res.Mode != FullSync {
			t.Errorf("expected full sync on first run, got %s", res.Mode)
		}
		if res.AutoAccepted != 3 {
			t.Errorf("expected 3 auto accepted, got %d (%v)", res.AutoAccepted, kinds(res))
		}
		for i, e := range res.Entries {
			if e.Entry.Position != i {
				t.Errorf("expected entry %d at position %d, got %d", i, i, e.Entry.Position)
			}
		}

		calls := h.writer.Calls()
		if len(calls) != 1 {
			t.Fatalf("expected one write, got %d", len(calls))
		}
		if got := strings.Join(calls[0].IDs, ","); got != "q1,d1,b1" {
			t.Errorf("expected ids in source order, got %s", got)
		}
		if calls[0].Name != "road" {
			t.Errorf("expected playlist name road, got %s", calls[0].Name)
		}
		if !res.Written || res.RemoteID != "playlist-road" {
			t.Errorf("expected write result to be recorded, got %v %q", res.Written, res.RemoteID)
		}

		if !res.Advanced {
			t.Fatal("expected sync state to advance")
		}
		state, err := h.states.Get(path)
		if err != nil {
			t.Fatalf("expected stored sync state, got %v", err)
		}
		if state.TrackCount != 3 {
			t.Errorf("expected 3 stored fingerprints, got %d", state.TrackCount)
		}
	})

	t.Run("unchanged second run makes no remote queries", func(t *testing.T) {
		h := newHarness(t)
		h.track("q1", "Queen", "Bohemian Rhapsody")
		path := h.playlist(t, "p.txt", "Queen - Bohemian Rhapsody")

		if _, err := h.engine.RunPlaylist(ctx, nil, path, RunOptions{}); err != nil {
			t.Fatalf("first run failed: %v", err)
		}
		before := h.catalog.TotalCalls()
		h.client.Reset()

		res, err := h.engine.RunPlaylist(ctx, nil, path, RunOptions{})
		if err != nil {
			t.Fatalf("second run failed: %v", err)
		}
		if res.Mode != Unchanged {
			t.Errorf("expected unchanged, got %s (%s)", res.Mode, res.Plan.Reason)
		}
		if got := h.catalog.TotalCalls(); got != before {
			t.Errorf("expected no new queries, got %d", got-before)
		}
		if len(h.writer.Calls()) != 1 {
			t.Errorf("expected the sink to be skipped, got %d writes", len(h.writer.Calls()))
		}
	})

	t.Run("exhausted retries reject only that entry", func(t *testing.T) {
		h := newHarness(t)
		h.track("q1", "Queen", "Bohemian Rhapsody")
		h.track("d1", "Daft Punk", "One More Time")
		flaky := h.query("Bjork", "Joga")
		for range 3 {
			h.catalog.Fail(flaky, &shared.TransientError{Op: "search", Err: errors.New("status 503")})
		}

		path := h.playlist(t, "p.txt",
			"Queen - Bohemian Rhapsody",
			"Björk - Jóga",
			"Daft Punk - One More Time",
		)

		res, err := h.engine.RunPlaylist(ctx, nil, path, RunOptions{})
		if err != nil {
			t.Fatalf("expected failure isolation, got %v", err)
		}

		want := []models.DecisionKind{models.AutoAccepted, models.Rejected, models.AutoAccepted}
		for i, k := range kinds(res) {
			if k != want[i] {
				t.Errorf("entry %d: expected %s, got %s", i, want[i], k)
			}
		}
		if !strings.Contains(res.Entries[1].Decision.Reason, "exhausted") {
			t.Errorf("expected exhausted reason, got %q", res.Entries[1].Decision.Reason)
		}
		if h.catalog.Calls(flaky) != 3 {
			t.Errorf("expected 3 attempts, got %d", h.catalog.Calls(flaky))
		}
		if got := strings.Join(h.writer.Calls()[0].IDs, ","); got != "q1,d1" {
			t.Errorf("expected rejected entry to be left out, got %s", got)
		}
		if !res.Advanced {
			t.Error("expected rejections to allow advancement")
		}
	})

	t.Run("deferred entry blocks advancement but not the write", func(t *testing.T) {
		h := newHarness(t)
		h.track("q1", "Queen", "Bohemian Rhapsody")
		h.track("d1", "Daft Punk", "One More Time")
		h.catalog.Fail(h.query("Bjork", "Joga"), errors.New("status 400"))

		path := h.playlist(t, "p.txt", "Queen - Bohemian Rhapsody", "Björk - Jóga", "Daft Punk - One More Time")

		res, err := h.engine.RunPlaylist(ctx, nil, path, RunOptions{})
		if err != nil {
			t.Fatalf("expected entry error to be isolated, got %v", err)
		}
		if res.Entries[1].Decision.Kind != models.Deferred || res.Entries[1].Err == nil {
			t.Errorf("expected deferred entry with error, got %s (%v)", res.Entries[1].Decision.Kind, res.Entries[1].Err)
		}
		if res.AllTerminal() {
			t.Error("expected AllTerminal to be false")
		}

		calls := h.writer.Calls()
		if len(calls) != 1 {
			t.Fatalf("expected accepted tracks to be written, got %d writes", len(calls))
		}
		if got := strings.Join(calls[0].IDs, ","); got != "q1,d1" {
			t.Errorf("expected deferred entry to be left out, got %s", got)
		}
		if !res.Written {
			t.Error("expected write to be recorded")
		}
		if res.Advanced {
			t.Error("expected deferred entry to block advancement")
		}
		if _, err := h.states.Get(path); !errors.Is(err, shared.ErrRecordNotFound) {
			t.Errorf("expected no stored state, got %v", err)
		}
	})

	t.Run("repeated entries are decided once", func(t *testing.T) {
		h := newHarness(t)
		h.track("q1", "Queen", "Bohemian Rhapsody")
		h.track("d1", "Daft Punk", "One More Time")
		h.catalog.Delay = 20 * time.Millisecond

		operator := &tu.FakeReviewer{Decide: func(req decision.ReviewRequest) decision.Verdict {
			return decision.Verdict{Action: decision.Accept, CandidateID: req.Candidates[0].ID}
		}}
		h.withPolicy(decision.Options{
			Thresholds: decision.Thresholds{AutoAccept: 101, Review: 90},
			Memory:     h.decisions,
			Operator:   operator,
		})

		path := h.playlist(t, "p.txt",
			"Queen - Bohemian Rhapsody",
			"Daft Punk - One More Time",
			"Queen - Bohemian Rhapsody",
			"Queen - Bohemian Rhapsody (Remastered 2011)",
		)

		res, err := h.engine.RunPlaylist(ctx, nil, path, RunOptions{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		prompted := map[string]int{}
		for _, req := range operator.Requests() {
			prompted[req.Key.Fingerprint()]++
		}
		if len(operator.Requests()) != 2 {
			t.Errorf("expected one prompt per distinct track, got %d", len(operator.Requests()))
		}
		for fp, n := range prompted {
			if n != 1 {
				t.Errorf("expected fingerprint %s to be prompted once, got %d", fp[:8], n)
			}
		}
		if h.catalog.Calls(h.query("Queen", "Bohemian Rhapsody")) != 1 {
			t.Errorf("expected one search for the repeated track, got %d", h.catalog.Calls(h.query("Queen", "Bohemian Rhapsody")))
		}

		if res.ManuallyAccepted != 4 {
			t.Errorf("expected every copy to share the decision, got %v", kinds(res))
		}
		for i, e := range res.Entries {
			if e.Entry.Position != i {
				t.Errorf("expected entry %d at position %d, got %d", i, i, e.Entry.Position)
			}
		}
		if got := strings.Join(h.writer.Calls()[0].IDs, ","); got != "q1,d1,q1,q1" {
			t.Errorf("expected repeated ids in source order, got %s", got)
		}

		stored, err := h.decisions.List(res.Path)
		if err != nil {
			t.Fatalf("failed to list decisions: %v", err)
		}
		if len(stored) != 2 {
			t.Errorf("expected one stored decision per fingerprint, got %d", len(stored))
		}
	})

	t.Run("authentication failure is fatal", func(t *testing.T) {
		h := newHarness(t)
		h.track("q1", "Queen", "Bohemian Rhapsody")
		h.catalog.Fail(h.query("Bjork", "Joga"), &shared.AuthError{Service: "fake", Err: errors.New("status 401")})

		path := h.playlist(t, "p.txt", "Queen - Bohemian Rhapsody", "Björk - Jóga")

		res, err := h.engine.RunPlaylist(ctx, nil, path, RunOptions{})
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Fatalf("expected auth failure, got %v", err)
		}
		if res.Advanced {
			t.Error("expected no advancement after auth failure")
		}
	})

	t.Run("dry run skips the sink and keeps state", func(t *testing.T) {
		h := newHarness(t)
		h.track("q1", "Queen", "Bohemian Rhapsody")
		path := h.playlist(t, "p.txt", "Queen - Bohemian Rhapsody", "Nobody - Nothing")

		res, err := h.engine.RunPlaylist(ctx, nil, path, RunOptions{DryRun: true})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.AutoAccepted != 1 || res.Rejected != 1 {
			t.Errorf("expected 1 accepted and 1 rejected, got %v", kinds(res))
		}
		if len(h.writer.Calls()) != 0 || res.Advanced {
			t.Errorf("expected dry run to skip sink and state, got writes=%d advanced=%v", len(h.writer.Calls()), res.Advanced)
		}

		stored, err := h.decisions.List(res.Path)
		if err != nil {
			t.Fatalf("failed to list decisions: %v", err)
		}
		if len(stored) != 2 {
			t.Errorf("expected decisions to be remembered, got %d", len(stored))
		}
	})

	t.Run("sink failure keeps state", func(t *testing.T) {
		h := newHarness(t)
		h.track("q1", "Queen", "Bohemian Rhapsody")
		h.writer.Err = &shared.TransientError{Op: "replace", Err: errors.New("status 502")}
		path := h.playlist(t, "p.txt", "Queen - Bohemian Rhapsody")

		res, err := h.engine.RunPlaylist(ctx, nil, path, RunOptions{})
		if err == nil {
			t.Fatal("expected sink error")
		}
		if res.Advanced {
			t.Error("expected state to stay put after sink failure")
		}
	})

	t.Run("delta recalls automatic acceptances for unchanged entries", func(t *testing.T) {
		h := newHarness(t)
		h.track("q1", "Queen", "Bohemian Rhapsody")
		h.track("d1", "Daft Punk", "One More Time")
		h.track("b1", "Bjork", "Joga")

		path := h.playlist(t, "p.txt", "Queen - Bohemian Rhapsody", "Daft Punk - One More Time")
		if _, err := h.engine.RunPlaylist(ctx, nil, path, RunOptions{}); err != nil {
			t.Fatalf("first run failed: %v", err)
		}

		h.playlist(t, "p.txt", "Queen - Bohemian Rhapsody", "Daft Punk - One More Time", "Björk - Jóga")
		h.client.Reset()

		res, err := h.engine.RunPlaylist(ctx, nil, path, RunOptions{})
		if err != nil {
			t.Fatalf("second run failed: %v", err)
		}
		if res.Mode != Delta {
			t.Fatalf("expected delta, got %s (%s)", res.Mode, res.Plan.Reason)
		}
		if !res.Entries[0].Decision.Recalled || !res.Entries[1].Decision.Recalled {
			t.Error("expected unchanged entries to be recalled")
		}
		if res.Entries[2].Decision.Recalled {
			t.Error("expected the added entry to be resolved from scratch")
		}
		if h.catalog.Calls(h.query("Queen", "Bohemian Rhapsody")) != 1 {
			t.Errorf("expected recalled entry not to be searched again")
		}
		if got := strings.Join(h.writer.Calls()[1].IDs, ","); got != "q1,d1,b1" {
			t.Errorf("expected full ordered list on delta write, got %s", got)
		}
	})

	t.Run("auto accept is idempotent", func(t *testing.T) {
		h := newHarness(t)
		h.track("q1", "Queen", "Bohemian Rhapsody")
		h.track("d1", "Daft Punk", "One More Time")
		path := h.playlist(t, "p.txt", "Queen - Bohemian Rhapsody", "Daft Punk - One More Time", "Nobody - Nothing")

		first, err := h.engine.RunPlaylist(ctx, nil, path, RunOptions{ForceFull: true})
		if err != nil {
			t.Fatalf("first run failed: %v", err)
		}
		h.client.Reset()
		second, err := h.engine.RunPlaylist(ctx, nil, path, RunOptions{ForceFull: true})
		if err != nil {
			t.Fatalf("second run failed: %v", err)
		}

		for i := range first.Entries {
			a, b := first.Entries[i].Decision, second.Entries[i].Decision
			if a.Kind != b.Kind || a.CandidateID() != b.CandidateID() || a.Score != b.Score {
				t.Errorf("entry %d: expected identical decisions, got %s/%s vs %s/%s", i, a.Kind, a.CandidateID(), b.Kind, b.CandidateID())
			}
		}
	})

	t.Run("counts skipped lines", func(t *testing.T) {
		h := newHarness(t)
		h.track("q1", "Queen", "Bohemian Rhapsody")
		path := h.playlist(t, "p.m3u",
			"#EXTM3U",
			"#EXTINF:354,Queen - Bohemian Rhapsody",
			"Queen/A Night at the Opera/11 - Bohemian Rhapsody.mp3",
			"#EXTINF:oops",
		)

		res, err := h.engine.RunPlaylist(ctx, nil, path, RunOptions{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Skipped != 1 || len(res.ParseErrors) != 1 {
			t.Errorf("expected one skipped line, got %d (%v)", res.Skipped, res.ParseErrors)
		}
		if len(res.Entries) != 1 {
			t.Errorf("expected one entry, got %d", len(res.Entries))
		}
	})

	t.Run("missing file", func(t *testing.T) {
		h := newHarness(t)
		res, err := h.engine.RunPlaylist(ctx, nil, filepath.Join(h.dir, "nope.m3u"), RunOptions{})
		if err == nil {
			t.Fatal("expected error for a missing file")
		}
		if res == nil || res.Err == nil {
			t.Error("expected the error on the result")
		}
	})
}

func TestReconcileEngineRun(t *testing.T) {
	ctx := context.Background()

	t.Run("deduplicates searches across playlists", func(t *testing.T) {
		h := newHarness(t)
		h.track("q1", "Queen", "Bohemian Rhapsody")
		h.track("d1", "Daft Punk", "One More Time")
		h.playlist(t, "a.txt", "Queen - Bohemian Rhapsody", "Daft Punk - One More Time")
		h.playlist(t, "b.txt", "QUEEN - Bohemian Rhapsody", "Nobody - Nothing")

		progress := make(chan ProgressUpdate, 100)
		summary, err := h.engine.Run(ctx, progress, []string{h.dir}, RunOptions{Parallel: 2})
		close(progress)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if len(summary.Playlists) != 2 {
			t.Fatalf("expected 2 playlists, got %d", len(summary.Playlists))
		}
		if summary.Playlists[0].Name != "a" || summary.Playlists[1].Name != "b" {
			t.Errorf("expected input order, got %s, %s", summary.Playlists[0].Name, summary.Playlists[1].Name)
		}
		if summary.AutoAccepted != 3 || summary.Rejected != 1 {
			t.Errorf("expected 3 accepted and 1 rejected, got %d and %d", summary.AutoAccepted, summary.Rejected)
		}
		if got := h.catalog.Calls(h.query("Queen", "Bohemian Rhapsody")); got != 1 {
			t.Errorf("expected one query for a shared entry, got %d", got)
		}
		if summary.Queries != 3 {
			t.Errorf("expected 3 remote queries, got %d", summary.Queries)
		}

		phases := map[Phase]bool{}
		for u := range progress {
			phases[u.Phase] = true
		}
		for _, p := range []Phase{Discover, Parse, Plan, Resolve, Complete} {
			if !phases[p] {
				t.Errorf("expected a %s update", p)
			}
		}

		run, err := h.runs.Get(summary.RunID)
		if err != nil {
			t.Fatalf("expected run to be recorded, got %v", err)
		}
		if run.CompletedAt == nil || run.AutoAccepted != 3 || run.Playlists != 2 {
			t.Errorf("expected completed run record, got %+v", run)
		}
	})

	t.Run("second run reports unchanged playlists", func(t *testing.T) {
		h := newHarness(t)
		h.track("q1", "Queen", "Bohemian Rhapsody")
		h.playlist(t, "a.txt", "Queen - Bohemian Rhapsody")

		if _, err := h.engine.Run(ctx, nil, []string{h.dir}, RunOptions{}); err != nil {
			t.Fatalf("first run failed: %v", err)
		}
		h.client.Reset()

		summary, err := h.engine.Run(ctx, nil, []string{h.dir}, RunOptions{})
		if err != nil {
			t.Fatalf("second run failed: %v", err)
		}
		if summary.Unchanged != 1 || summary.Queries != 0 {
			t.Errorf("expected 1 unchanged playlist and no queries, got %d and %d", summary.Unchanged, summary.Queries)
		}
	})

	t.Run("authentication failure stops the run", func(t *testing.T) {
		h := newHarness(t)
		h.catalog.Fail(h.query("Queen", "Bohemian Rhapsody"), &shared.AuthError{Service: "fake", Err: errors.New("status 401")})
		h.playlist(t, "a.txt", "Queen - Bohemian Rhapsody")

		summary, err := h.engine.Run(ctx, nil, []string{h.dir}, RunOptions{})
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Fatalf("expected auth failure, got %v", err)
		}
		if summary.FatalError == nil {
			t.Error("expected fatal error on the summary")
		}

		run, err := h.runs.Get(summary.RunID)
		if err != nil {
			t.Fatalf("expected run to be recorded, got %v", err)
		}
		if run.FatalError == "" {
			t.Error("expected fatal error in the run record")
		}
	})

	t.Run("cancelled before start", func(t *testing.T) {
		h := newHarness(t)
		h.track("q1", "Queen", "Bohemian Rhapsody")
		path := h.playlist(t, "a.txt", "Queen - Bohemian Rhapsody")

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		if _, err := h.engine.Run(cctx, nil, []string{path}, RunOptions{}); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if _, err := h.states.Get(path); !errors.Is(err, shared.ErrRecordNotFound) {
			t.Errorf("expected no state after cancel, got %v", err)
		}
	})

	t.Run("requires paths", func(t *testing.T) {
		h := newHarness(t)
		if _, err := h.engine.Run(ctx, nil, nil, RunOptions{}); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("missing path", func(t *testing.T) {
		h := newHarness(t)
		if _, err := h.engine.Run(ctx, nil, []string{filepath.Join(h.dir, "missing")}, RunOptions{}); err == nil {
			t.Error("expected error for a missing path")
		}
	})
}

func TestPlaylistResult(t *testing.T) {
	accepted := func(id string) EntryResult {
		return EntryResult{Decision: models.MatchDecision{
			Kind:      models.AutoAccepted,
			Candidate: &models.ScoredCandidate{CatalogCandidate: models.CatalogCandidate{ID: id}},
		}}
	}

	r := &PlaylistResult{Entries: []EntryResult{
		accepted("a"),
		{Decision: models.MatchDecision{Kind: models.Rejected}},
		accepted("b"),
	}}
	if got := strings.Join(r.AcceptedIDs(), ","); got != "a,b" {
		t.Errorf("expected a,b, got %s", got)
	}
	if !r.AllTerminal() {
		t.Error("expected all terminal")
	}

	r.Entries = append(r.Entries, EntryResult{Decision: models.MatchDecision{Kind: models.Deferred}})
	if r.AllTerminal() {
		t.Error("expected deferred entry to make the result non-terminal")
	}

	r.Entries[3] = EntryResult{Decision: models.MatchDecision{Kind: models.Rejected}, Err: errors.New("boom")}
	if r.AllTerminal() {
		t.Error("expected entry error to make the result non-terminal")
	}
}

func TestExpandPaths(t *testing.T) {
	dir := t.TempDir()
	a := tu.WritePlaylist(t, dir, "a.m3u", "#EXTM3U")
	tu.WritePlaylist(t, dir, "b.pls", "[playlist]")
	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("# notes"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	files, err := expandPaths([]string{dir, a})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(files) != 2 {
		t.Errorf("expected duplicates to collapse into 2 files, got %v", files)
	}
}

func TestReconcileEngineStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.track("q1", "Queen", "Bohemian Rhapsody")
	h.track("d1", "Daft Punk", "One More Time")

	path := h.playlist(t, "road.txt", "Queen - Bohemian Rhapsody", "Daft Punk - One More Time", "not an entry")

	statuses, err := h.engine.Status(ctx, []string{path})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(statuses) != 1 {
		t.Fatalf("expected 1 status, got %d", len(statuses))
	}
	if s := statuses[0]; s.Plan.Mode != FullSync || s.Entries != 2 || s.Skipped != 1 || s.Err != nil {
		t.Errorf("unexpected first status: %+v", s)
	}
	if h.catalog.TotalCalls() != 0 {
		t.Error("expected status to make no remote queries")
	}

	if _, err := h.engine.RunPlaylist(ctx, nil, path, RunOptions{}); err != nil {
		t.Fatalf("RunPlaylist failed: %v", err)
	}

	statuses, err = h.engine.Status(ctx, []string{path})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if statuses[0].Plan.Mode != Unchanged {
		t.Errorf("expected unchanged after a sync, got %s", statuses[0].Plan.Mode)
	}

	h.playlist(t, "road.txt", "Queen - Bohemian Rhapsody", "Daft Punk - One More Time", "Bjork - Joga")
	statuses, err = h.engine.Status(ctx, []string{path})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if statuses[0].Plan.Mode != Delta {
		t.Errorf("expected delta after adding an entry, got %s", statuses[0].Plan.Mode)
	}

	t.Run("requires a sync controller", func(t *testing.T) {
		engine := NewReconcileEngine(EngineConfig{})
		if _, err := engine.Status(ctx, []string{path}); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})
}
