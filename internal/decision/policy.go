// package decision turns ranked candidates into match decisions.
//
// Scores at or above the auto-accept threshold are accepted outright. Scores in
// the review band go to the oracle and then the operator. Anything below is
// rejected unless the operator supplies manual search terms. Terminal decisions
// are committed to session memory before they are returned.
package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/scoring"
	"github.com/desertthunder/plsync/internal/shared"
)

const defaultSearchRounds = 3

// Memory stores terminal decisions across runs.
type Memory interface {
	Lookup(playlist, fingerprint string) (models.DecisionRecord, bool, error)
	Put(playlist, fingerprint string, rec models.DecisionRecord) error
}

// Searcher runs an operator-supplied query against the catalog.
type Searcher func(ctx context.Context, query string) ([]models.CatalogCandidate, error)

// RecallMode selects which stored decisions [Policy.Recall] may replay.
type RecallMode int

const (
	// RecallReviewed replays operator and oracle decisions only.
	RecallReviewed RecallMode = iota
	// RecallAll also replays automatic acceptances. Used for unchanged entries of a delta sync.
	RecallAll
)

// Thresholds holds the policy's score boundaries.
type Thresholds struct {
	AutoAccept          float64
	Review              float64
	OracleMinConfidence float64
	SearchRounds        int
	ManualSearch        bool
}

// ThresholdsFromConfig builds Thresholds from the [matching], [search] and [review] sections.
func ThresholdsFromConfig(cfg *shared.Config) Thresholds {
	return Thresholds{
		AutoAccept:          cfg.Matching.AutoAcceptThreshold,
		Review:              cfg.Matching.ReviewThreshold(),
		OracleMinConfidence: cfg.Matching.OracleMinConfidence,
		SearchRounds:        cfg.Search.ManualSearches,
		ManualSearch:        cfg.Review.ManualSearch,
	}
}

// DefaultThresholds returns the built-in thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{AutoAccept: 85, Review: 80, OracleMinConfidence: 0.7, SearchRounds: defaultSearchRounds}
}

// Options configures a [Policy]. Every collaborator is optional.
type Options struct {
	Thresholds Thresholds
	Memory     Memory
	Oracle     Reviewer
	Operator   Reviewer
	Scorer     *scoring.Scorer
	Search     Searcher
	Logger     *log.Logger
	Now        func() time.Time
}

// Subject is one entry awaiting a decision.
type Subject struct {
	Playlist   string
	Entry      models.LocalTrackEntry
	Key        models.NormalizedKey
	Candidates []models.ScoredCandidate // ranked
}

// Policy decides entries and commits the outcome.
type Policy struct {
	th       Thresholds
	memory   Memory
	oracle   Reviewer
	operator Reviewer
	scorer   *scoring.Scorer
	search   Searcher
	logger   *log.Logger
	now      func() time.Time

	promptMu sync.Mutex
}

// New creates a Policy.
func New(opts Options) *Policy {
	th := opts.Thresholds
	if th.AutoAccept <= 0 {
		th = DefaultThresholds()
	}
	if th.Review <= 0 || th.Review > th.AutoAccept {
		th.Review = th.AutoAccept - 5
	}
	if th.SearchRounds <= 0 {
		th.SearchRounds = defaultSearchRounds
	}

	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	scorer := opts.Scorer
	if scorer == nil {
		scorer = scoring.New(scoring.DefaultOptions())
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Policy{
		th:       th,
		memory:   opts.Memory,
		oracle:   opts.Oracle,
		operator: opts.Operator,
		scorer:   scorer,
		search:   opts.Search,
		logger:   shared.WithLogger(logger, "component", "decision"),
		now:      now,
	}
}

// Thresholds returns the effective thresholds.
func (p *Policy) Thresholds() Thresholds { return p.th }

// Decide resolves s and commits terminal decisions before returning them.
//
// A commit failure returns a Deferred decision together with the error.
func (p *Policy) Decide(ctx context.Context, s Subject) (models.MatchDecision, error) {
	d, err := p.decide(ctx, s)
	if err != nil {
		return p.deferred(topScore(s.Candidates), err.Error()), err
	}
	return p.commit(s, d)
}

// Reject records an automatic rejection for an entry that could not be searched.
func (p *Policy) Reject(s Subject, reason string) (models.MatchDecision, error) {
	return p.commit(s, p.decision(models.Rejected, models.OriginAuto, nil, 0, reason))
}

// Recall replays a stored decision for key when mode allows it.
//
// Automatic rejections are never replayed so the entry is retried.
func (p *Policy) Recall(ctx context.Context, playlist string, key models.NormalizedKey, mode RecallMode) (models.MatchDecision, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.MatchDecision{}, false, err
	}
	if p.memory == nil {
		return models.MatchDecision{}, false, nil
	}

	rec, ok, err := p.memory.Lookup(playlist, key.Fingerprint())
	if err != nil || !ok {
		return models.MatchDecision{}, false, err
	}

	switch {
	case rec.Origin == models.OriginOperator || rec.Origin == models.OriginOracle:
	case rec.Kind == models.AutoAccepted && mode == RecallAll:
	default:
		return models.MatchDecision{}, false, nil
	}
	return rec.Decision(), true, nil
}

func (p *Policy) decide(ctx context.Context, s Subject) (models.MatchDecision, error) {
	candidates := s.Candidates
	for round := 0; ; round++ {
		if len(candidates) == 0 {
			reason := "no candidates"
			if round > 0 {
				reason = "manual search returned no candidates"
			}
			return p.decision(models.Rejected, models.OriginAuto, nil, 0, reason), nil
		}

		top := candidates[0]
		if top.Score >= p.th.AutoAccept {
			return p.decision(models.AutoAccepted, models.OriginAuto, &top, top.Score, "score at or above auto-accept threshold"), nil
		}

		inBand := top.Score >= p.th.Review
		canSearch := p.canSearch(round)
		if !inBand && !canSearch {
			return p.decision(models.Rejected, models.OriginAuto, nil, top.Score, "score below review threshold"), nil
		}

		req := ReviewRequest{
			Playlist:    s.Playlist,
			Entry:       s.Entry,
			Key:         s.Key,
			Candidates:  candidates,
			Round:       round,
			LowScore:    !inBand,
			AllowSearch: canSearch,
		}

		if inBand && p.oracle != nil {
			if d, ok := p.askOracle(ctx, req); ok {
				return d, nil
			}
			if err := ctx.Err(); err != nil {
				return models.MatchDecision{}, err
			}
		}

		if p.operator == nil {
			return p.deferred(top.Score, "no reviewer available"), nil
		}

		v, err := p.prompt(ctx, p.operator, req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return models.MatchDecision{}, ctxErr
			}
			p.logger.Warn("operator review failed", "artist", s.Entry.Artist, "title", s.Entry.Title, "error", err)
			v = Verdict{Action: NoSuggestion}
		}

		switch v.Action {
		case Accept:
			c, ok := findCandidate(candidates, v.CandidateID)
			if !ok {
				return p.deferred(top.Score, fmt.Sprintf("operator chose unknown candidate %q", v.CandidateID)), nil
			}
			return p.decision(models.ManuallyAccepted, models.OriginOperator, &c, c.Score, reviewReason("operator accepted", v.Notes)), nil
		case Reject:
			return p.decision(models.Rejected, models.OriginOperator, nil, top.Score, reviewReason("operator rejected", v.Notes)), nil
		case Defer:
			return p.deferred(top.Score, "operator deferred"), nil
		case Search:
			query := strings.TrimSpace(v.Query)
			if canSearch && query != "" {
				next, err := p.manualSearch(ctx, s, query)
				if err != nil {
					return models.MatchDecision{}, err
				}
				candidates = next
				continue
			}
		}

		if inBand {
			return p.deferred(top.Score, "no suggestion"), nil
		}
		return p.decision(models.Rejected, models.OriginAuto, nil, top.Score, "score below review threshold"), nil
	}
}

func (p *Policy) canSearch(round int) bool {
	return p.th.ManualSearch && p.operator != nil && p.search != nil && round < p.th.SearchRounds
}

// askOracle returns an accepted decision when the oracle is confident about a listed candidate.
func (p *Policy) askOracle(ctx context.Context, req ReviewRequest) (models.MatchDecision, bool) {
	v, err := p.prompt(ctx, p.oracle, req)
	if err != nil {
		p.logger.Warn("oracle review failed", "reviewer", p.oracle.Name(), "error", err)
		return models.MatchDecision{}, false
	}
	if v.Action != Accept || v.Confidence < p.th.OracleMinConfidence {
		p.logger.Debug("oracle not confident", "action", v.Action, "confidence", v.Confidence)
		return models.MatchDecision{}, false
	}

	c, ok := findCandidate(req.Candidates, v.CandidateID)
	if !ok {
		p.logger.Warn("oracle chose unlisted candidate", "candidate", v.CandidateID)
		return models.MatchDecision{}, false
	}

	reason := reviewReason(fmt.Sprintf("oracle accepted (confidence %.2f)", v.Confidence), v.Notes)
	return p.decision(models.ManuallyAccepted, models.OriginOracle, &c, c.Score, reason), true
}

// prompt serializes reviewer calls so only one prompt is outstanding.
func (p *Policy) prompt(ctx context.Context, r Reviewer, req ReviewRequest) (Verdict, error) {
	p.promptMu.Lock()
	defer p.promptMu.Unlock()

	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}
	return r.Review(ctx, req)
}

func (p *Policy) manualSearch(ctx context.Context, s Subject, query string) ([]models.ScoredCandidate, error) {
	found, err := p.search(ctx, query)
	if err != nil {
		var authErr *shared.AuthError
		if errors.As(err, &authErr) || ctx.Err() != nil {
			return nil, err
		}
		p.logger.Warn("manual search failed", "query", query, "error", err)
		return nil, nil
	}
	return p.scorer.ScoreTarget(scoring.NewTarget(s.Entry, s.Key), found), nil
}

func (p *Policy) commit(s Subject, d models.MatchDecision) (models.MatchDecision, error) {
	if !d.Terminal() || p.memory == nil {
		return d, nil
	}

	if err := p.memory.Put(s.Playlist, s.Key.Fingerprint(), d.Record()); err != nil {
		p.logger.Error("failed to commit decision", "artist", s.Entry.Artist, "title", s.Entry.Title, "error", err)
		return p.deferred(d.Score, "commit failed"), fmt.Errorf("failed to commit decision: %w", err)
	}
	return d, nil
}

func (p *Policy) decision(kind models.DecisionKind, origin models.DecisionOrigin, c *models.ScoredCandidate, score float64, reason string) models.MatchDecision {
	return models.MatchDecision{
		Kind:      kind,
		Candidate: c,
		Score:     score,
		Origin:    origin,
		Reason:    reason,
		DecidedAt: p.now().UTC(),
	}
}

func (p *Policy) deferred(score float64, reason string) models.MatchDecision {
	return p.decision(models.Deferred, models.OriginAuto, nil, score, reason)
}

func topScore(candidates []models.ScoredCandidate) float64 {
	if len(candidates) == 0 {
		return 0
	}
	return candidates[0].Score
}

func reviewReason(base, notes string) string {
	if notes = strings.TrimSpace(notes); notes == "" {
		return base
	}
	return base + ": " + notes
}
