package tasks

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/decision"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/normalize"
	"github.com/desertthunder/plsync/internal/parser"
	"github.com/desertthunder/plsync/internal/scoring"
	"github.com/desertthunder/plsync/internal/search"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
)

// RunOptions controls a reconcile run.
type RunOptions struct {
	Parallel  int  // playlists processed at once (default 1)
	DryRun    bool // decide and remember, but skip the write sink and keep sync state
	ForceFull bool // ignore stored sync state
}

// EntryResult is the outcome for one parsed entry.
type EntryResult struct {
	Entry      models.LocalTrackEntry
	Key        models.NormalizedKey
	Decision   models.MatchDecision
	Candidates int   // scored candidates considered
	Err        error // entry-level failure; the decision is Deferred
}

// PlaylistResult is the outcome for one playlist file.
type PlaylistResult struct {
	Path             string
	Name             string
	Mode             SyncMode
	Plan             SyncPlan
	Entries          []EntryResult // source order
	Skipped          int
	ParseErrors      []*parser.ParseError
	AutoAccepted     int
	ManuallyAccepted int
	Rejected         int
	Deferred         int
	Recalled         int
	Written          bool
	RemoteID         string
	Advanced         bool
	Err              error // playlist-level failure (unreadable file, sink error)
}

// AcceptedIDs returns the catalog IDs of accepted entries in source order.
func (r *PlaylistResult) AcceptedIDs() []string {
	ids := make([]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		if e.Decision.Kind.Accepted() && e.Decision.CandidateID() != "" {
			ids = append(ids, e.Decision.CandidateID())
		}
	}
	return ids
}

// AllTerminal reports whether every entry reached a terminal decision without error.
func (r *PlaylistResult) AllTerminal() bool {
	for _, e := range r.Entries {
		if e.Err != nil || !e.Decision.Terminal() {
			return false
		}
	}
	return true
}

func (r *PlaylistResult) count() {
	r.AutoAccepted, r.ManuallyAccepted, r.Rejected, r.Deferred, r.Recalled = 0, 0, 0, 0, 0
	for _, e := range r.Entries {
		if e.Decision.Recalled {
			r.Recalled++
		}
		switch e.Decision.Kind {
		case models.AutoAccepted:
			r.AutoAccepted++
		case models.ManuallyAccepted:
			r.ManuallyAccepted++
		case models.Rejected:
			r.Rejected++
		default:
			r.Deferred++
		}
	}
}

// RunSummary aggregates a reconcile run.
type RunSummary struct {
	RunID            string
	StartedAt        time.Time
	CompletedAt      time.Time
	Playlists        []*PlaylistResult // input order
	Unchanged        int
	AutoAccepted     int
	ManuallyAccepted int
	Rejected         int
	Deferred         int
	SkippedLines     int
	Queries          int
	FatalError       error
}

// Record converts the summary into its persisted form.
func (s *RunSummary) Record() *models.RunRecord {
	rec := models.NewRunRecord(s.StartedAt)
	rec.SetID(s.RunID)
	if !s.CompletedAt.IsZero() {
		done := s.CompletedAt
		rec.CompletedAt = &done
	}
	rec.Playlists = len(s.Playlists)
	rec.Unchanged = s.Unchanged
	rec.AutoAccepted = s.AutoAccepted
	rec.ManuallyAccepted = s.ManuallyAccepted
	rec.Rejected = s.Rejected
	rec.Deferred = s.Deferred
	rec.SkippedLines = s.SkippedLines
	if s.FatalError != nil {
		rec.FatalError = s.FatalError.Error()
	}
	return rec
}

func (s *RunSummary) add(r *PlaylistResult) {
	s.Playlists = append(s.Playlists, r)
	s.SkippedLines += r.Skipped
	if r.Mode == Unchanged && r.Err == nil {
		s.Unchanged++
	}
	s.AutoAccepted += r.AutoAccepted
	s.ManuallyAccepted += r.ManuallyAccepted
	s.Rejected += r.Rejected
	s.Deferred += r.Deferred
}

// RunRecorder persists run history. [repositories.RunRepository] implements it.
type RunRecorder interface {
	Create(run *models.RunRecord) error
	Update(run *models.RunRecord) error
}

// EngineConfig wires a [ReconcileEngine]. Writer and Runs are optional.
type EngineConfig struct {
	Search *search.Client
	Scorer *scoring.Scorer
	Policy *decision.Policy
	Sync   *SyncController
	Writer services.PlaylistWriter
	Runs   RunRecorder
	Logger *log.Logger
}

// ReconcileEngine resolves playlist files against a catalog.
type ReconcileEngine struct {
	search *search.Client
	scorer *scoring.Scorer
	policy *decision.Policy
	sync   *SyncController
	writer services.PlaylistWriter
	runs   RunRecorder
	logger *log.Logger
	now    func() time.Time
}

// NewReconcileEngine creates a ReconcileEngine.
func NewReconcileEngine(cfg EngineConfig) *ReconcileEngine {
	logger := cfg.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	scorer := cfg.Scorer
	if scorer == nil {
		scorer = scoring.New(scoring.DefaultOptions())
	}

	return &ReconcileEngine{
		search: cfg.Search,
		scorer: scorer,
		policy: cfg.Policy,
		sync:   cfg.Sync,
		writer: cfg.Writer,
		runs:   cfg.Runs,
		logger: shared.WithLogger(logger, "component", "engine"),
		now:    time.Now,
	}
}

// ManualSearch adapts a search client for operator-supplied queries.
func ManualSearch(client *search.Client) decision.Searcher {
	return func(ctx context.Context, query string) ([]models.CatalogCandidate, error) {
		out, err := client.SearchQuery(ctx, query)
		return out.Candidates, err
	}
}

// EntryKeys normalizes entries in order.
func EntryKeys(entries []models.LocalTrackEntry) []models.NormalizedKey {
	keys := make([]models.NormalizedKey, len(entries))
	for i, entry := range entries {
		keys[i] = normalize.Normalize(entry.Artist, entry.Title)
	}
	return keys
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *ReconcileEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// RunPlaylist reconciles a single playlist file.
//
// Playlist-level failures are returned in the result and as the error. An
// [shared.AuthError] from any entry aborts the playlist and is returned as is.
func (e *ReconcileEngine) RunPlaylist(ctx context.Context, progress chan<- ProgressUpdate, path string, opts RunOptions) (*PlaylistResult, error) {
	if e.search == nil || e.policy == nil || e.sync == nil {
		return nil, fmt.Errorf("%w: engine is missing search, policy or sync", shared.ErrServiceUnavailable)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}

	result := &PlaylistResult{Path: abs, Name: filepath.Base(abs)}
	logger := shared.WithLogger(e.logger, "playlist", result.Name)

	parsed, err := parser.ParseFile(abs)
	if err != nil {
		result.Err = err
		return result, err
	}
	result.Name = parsed.Name
	result.Skipped = parsed.Skipped
	result.ParseErrors = parsed.Errors
	for _, pe := range parsed.Errors {
		logger.Warn("skipped line", "line", pe.Line, "reason", pe.Reason)
	}
	e.sendProgress(progress, parseUpdate(abs, len(parsed.Entries), parsed.Skipped))

	keys := EntryKeys(parsed.Entries)

	plan := SyncPlan{Mode: FullSync, Hash: ContentHash(Fingerprints(keys)), Reason: "forced"}
	if !opts.ForceFull {
		if plan, err = e.sync.ShouldSync(ctx, abs, keys); err != nil {
			result.Err = err
			return result, err
		}
	}
	result.Mode = plan.Mode
	result.Plan = plan
	e.sendProgress(progress, planUpdate(abs, plan))
	logger.Info("sync plan", "mode", plan.Mode, "reason", plan.Reason, "entries", len(keys))

	if plan.Mode == Unchanged {
		return result, nil
	}

	entries, err := e.resolveAll(ctx, progress, abs, parsed.Entries, keys, plan)
	result.Entries = entries
	result.count()
	if err != nil {
		result.Err = err
		return result, err
	}

	if opts.DryRun {
		return result, nil
	}

	if e.writer != nil {
		ids := result.AcceptedIDs()
		e.sendProgress(progress, writeUpdate(result.Name, len(ids)))
		remoteID, err := e.writer.ReplacePlaylist(ctx, result.Name, fmt.Sprintf("Synced from %s", filepath.Base(abs)), ids)
		if err != nil {
			result.Err = fmt.Errorf("failed to write playlist %s: %w", result.Name, err)
			logger.Error("write sink failed", "error", err)
			return result, result.Err
		}
		result.Written = true
		result.RemoteID = remoteID
	}

	// Deferred entries are left out of the write and retried next run.
	if !result.AllTerminal() {
		logger.Info("playlist has unresolved entries", "deferred", result.Deferred)
		e.sendProgress(progress, advanceUpdate(abs, false))
		return result, nil
	}

	if err := e.sync.Advance(ctx, abs, keys); err != nil {
		result.Err = err
		return result, err
	}
	result.Advanced = true
	e.sendProgress(progress, advanceUpdate(abs, true))
	return result, nil
}

type entryOutcome struct {
	res   EntryResult
	fatal error
}

// resolveAll decides every entry concurrently. Remote calls are bounded by the
// search scheduler; results come back in source order.
//
// Entries sharing a fingerprint are decided once, by their first occurrence,
// so a repeated track is searched, prompted and committed a single time.
func (e *ReconcileEngine) resolveAll(
	ctx context.Context,
	progress chan<- ProgressUpdate,
	playlist string,
	entries []models.LocalTrackEntry,
	keys []models.NormalizedKey,
	plan SyncPlan,
) ([]EntryResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	groups := groupByFingerprint(keys)
	outcomes := make(chan entryOutcome, len(entries))

	var wg sync.WaitGroup
	for _, group := range groups {
		wg.Add(1)
		go func(group []int) {
			defer wg.Done()

			mode := decision.RecallAll
			for _, i := range group {
				if plan.Mode != Delta || plan.Changed(entries[i].Position) {
					mode = decision.RecallReviewed
				}
			}

			first := group[0]
			res, fatal := e.resolve(ctx, playlist, entries[first], keys[first], mode)
			if fatal != nil {
				cancel()
			}
			for _, i := range group {
				dup := res
				dup.Entry, dup.Key = entries[i], keys[i]
				outcomes <- entryOutcome{res: dup, fatal: fatal}
			}
		}(group)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	results := make([]EntryResult, 0, len(entries))
	var fatal error
	for out := range outcomes {
		results = append(results, out.res)
		if out.fatal != nil && fatal == nil {
			fatal = out.fatal
		}
		e.sendProgress(progress, resolveUpdate(len(results), len(entries), out.res.Entry, out.res.Decision))
	}

	slices.SortFunc(results, func(a, b EntryResult) int { return a.Entry.Position - b.Entry.Position })

	if fatal != nil {
		return results, fatal
	}
	return results, nil
}

// groupByFingerprint returns entry indexes grouped by fingerprint, in order of first occurrence.
func groupByFingerprint(keys []models.NormalizedKey) [][]int {
	index := make(map[string]int, len(keys))
	var groups [][]int
	for i, key := range keys {
		fp := key.Fingerprint()
		g, ok := index[fp]
		if !ok {
			g = len(groups)
			index[fp] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}

// resolve decides one entry. The returned error is fatal to the run; entry-level
// failures are recorded on the result instead.
func (e *ReconcileEngine) resolve(ctx context.Context, playlist string, entry models.LocalTrackEntry, key models.NormalizedKey, mode decision.RecallMode) (EntryResult, error) {
	res := EntryResult{Entry: entry, Key: key}
	subject := decision.Subject{Playlist: playlist, Entry: entry, Key: key}

	deferWith := func(err error) (EntryResult, error) {
		res.Err = err
		res.Decision = models.MatchDecision{Kind: models.Deferred, Origin: models.OriginAuto, Reason: err.Error(), DecidedAt: e.now().UTC()}
		if isFatal(err) {
			return res, err
		}
		return res, nil
	}

	if key.IsZero() {
		d, err := e.policy.Reject(subject, "entry has no searchable text")
		res.Decision = d
		res.Err = err
		return res, nil
	}

	d, ok, err := e.policy.Recall(ctx, playlist, key, mode)
	if err != nil {
		if ctx.Err() != nil {
			return deferWith(ctx.Err())
		}
		e.logger.Warn("session memory lookup failed", "artist", entry.Artist, "title", entry.Title, "error", err)
	}
	if ok {
		res.Decision = d
		return res, nil
	}

	out, err := e.search.Search(ctx, key)
	if err != nil {
		return deferWith(err)
	}
	if out.Exhausted {
		d, err := e.policy.Reject(subject, fmt.Sprintf("search retries exhausted: %v", out.LastErr))
		res.Decision = d
		res.Err = err
		return res, nil
	}

	subject.Candidates = e.scorer.ScoreTarget(scoring.NewTarget(entry, key), out.Candidates)
	res.Candidates = len(subject.Candidates)

	d, err = e.policy.Decide(ctx, subject)
	res.Decision = d
	if err != nil {
		return deferWith(err)
	}
	return res, nil
}

// Run reconciles every playlist under paths with a pool of opts.Parallel workers.
//
// Cancellation is checked between playlists. An [shared.AuthError] stops the
// run and is recorded as the summary's fatal error.
func (e *ReconcileEngine) Run(ctx context.Context, progress chan<- ProgressUpdate, paths []string, opts RunOptions) (*RunSummary, error) {
	files, err := expandPaths(paths)
	if err != nil {
		return nil, err
	}
	e.sendProgress(progress, discoverUpdate(len(files)))

	if opts.Parallel <= 0 {
		opts.Parallel = 1
	}

	summary := &RunSummary{RunID: shared.GenerateID(), StartedAt: e.now().UTC()}
	startQueries := e.search.Queries()
	if e.runs != nil {
		if err := e.runs.Create(summary.Record()); err != nil {
			e.logger.Warn("failed to record run start", "error", err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type job struct {
		index int
		path  string
	}
	type outcome struct {
		index  int
		path   string
		result *PlaylistResult
		err    error
	}

	jobs := make(chan job, len(files))
	results := make(chan outcome, len(files))

	var wg sync.WaitGroup
	for range min(opts.Parallel, max(len(files), 1)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				if runCtx.Err() != nil {
					return
				}
				res, err := e.RunPlaylist(runCtx, progress, j.path, opts)
				if isFatal(err) {
					cancel()
				}
				results <- outcome{index: j.index, path: j.path, result: res, err: err}
			}
		}()
	}

	for i, path := range files {
		jobs <- job{index: i, path: path}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]outcome, 0, len(files))
	for out := range results {
		collected = append(collected, out)
		if out.err != nil {
			e.sendProgress(progress, playlistFailedUpdate(len(collected), len(files), out.path, out.err))
		} else {
			e.sendProgress(progress, playlistCompleteUpdate(len(collected), len(files), out.result))
		}
		if isFatal(out.err) && summary.FatalError == nil {
			summary.FatalError = out.err
		}
	}

	slices.SortFunc(collected, func(a, b outcome) int { return a.index - b.index })
	for _, out := range collected {
		if out.result != nil {
			summary.add(out.result)
		}
	}

	if summary.FatalError == nil && ctx.Err() != nil {
		summary.FatalError = ctx.Err()
	}
	summary.Queries = e.search.Queries() - startQueries
	summary.CompletedAt = e.now().UTC()

	if e.runs != nil {
		if err := e.runs.Update(summary.Record()); err != nil {
			e.logger.Warn("failed to record run completion", "error", err)
		}
	}

	if summary.FatalError != nil {
		return summary, summary.FatalError
	}
	return summary, nil
}

func expandPaths(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no playlist paths given", shared.ErrMissingArgument)
	}

	var files []string
	seen := make(map[string]bool)
	for _, p := range paths {
		found, err := parser.Discover(p)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			if abs, err := filepath.Abs(f); err == nil {
				f = abs
			}
			if !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
		}
	}
	return files, nil
}

// isFatal reports whether err must stop the whole run.
func isFatal(err error) bool {
	if err == nil {
		return false
	}
	var authErr *shared.AuthError
	return errors.As(err, &authErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
