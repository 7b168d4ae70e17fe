package decision

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/normalize"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type memMemory struct {
	mu      sync.Mutex
	records map[string]models.DecisionRecord
	err     error
	puts    int
}

func newMemMemory() *memMemory {
	return &memMemory{records: make(map[string]models.DecisionRecord)}
}

func (m *memMemory) Lookup(playlist, fingerprint string) (models.DecisionRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[playlist+"/"+fingerprint]
	return rec, ok, nil
}

func (m *memMemory) Put(playlist, fingerprint string, rec models.DecisionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	m.puts++
	m.records[playlist+"/"+fingerprint] = rec
	return nil
}

type scriptedReviewer struct {
	name     string
	verdicts []Verdict
	err      error
	calls    atomic.Int64
}

func (r *scriptedReviewer) Name() string { return r.name }

func (r *scriptedReviewer) Review(ctx context.Context, req ReviewRequest) (Verdict, error) {
	n := int(r.calls.Add(1))
	if r.err != nil {
		return Verdict{}, r.err
	}
	if len(r.verdicts) == 0 {
		return Verdict{Action: NoSuggestion}, nil
	}
	return r.verdicts[min(n-1, len(r.verdicts)-1)], nil
}

func scored(id string, score float64) models.ScoredCandidate {
	return models.ScoredCandidate{
		CatalogCandidate: models.CatalogCandidate{ID: id, Artists: []string{"Queen"}, Title: "Bohemian Rhapsody"},
		Score:            score,
	}
}

func queenSubject(candidates ...models.ScoredCandidate) Subject {
	entry := models.LocalTrackEntry{Artist: "Queen", Title: "Bohemian Rhapsody", SourcePath: "/music/road.m3u"}
	return Subject{
		Playlist:   "/music/road.m3u",
		Entry:      entry,
		Key:        normalize.Normalize(entry.Artist, entry.Title),
		Candidates: candidates,
	}
}

func newPolicy(opts Options) *Policy {
	opts.Now = func() time.Time { return fixedNow }
	return New(opts)
}

func TestPolicyDecide(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects without candidates and without prompting", func(t *testing.T) {
		operator := &scriptedReviewer{name: "operator"}
		mem := newMemMemory()
		p := newPolicy(Options{Memory: mem, Operator: operator})

		d, err := p.Decide(ctx, queenSubject())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if d.Kind != models.Rejected || d.Origin != models.OriginAuto {
			t.Errorf("expected automatic rejection, got %+v", d)
		}
		if operator.calls.Load() != 0 {
			t.Errorf("expected no prompt, got %d", operator.calls.Load())
		}
		if mem.puts != 1 {
			t.Errorf("expected rejection to be committed, got %d puts", mem.puts)
		}
	})

	t.Run("auto accepts at threshold", func(t *testing.T) {
		mem := newMemMemory()
		p := newPolicy(Options{Memory: mem})
		s := queenSubject(scored("t1", 85), scored("t2", 70))

		d, err := p.Decide(ctx, s)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if d.Kind != models.AutoAccepted || d.CandidateID() != "t1" || d.Score != 85 {
			t.Errorf("unexpected decision %+v", d)
		}
		if !d.DecidedAt.Equal(fixedNow) {
			t.Errorf("expected decided_at %v, got %v", fixedNow, d.DecidedAt)
		}

		rec, ok, _ := mem.Lookup(s.Playlist, s.Key.Fingerprint())
		if !ok || rec.CandidateID != "t1" || rec.Kind != models.AutoAccepted {
			t.Errorf("expected committed record, got %+v (found %v)", rec, ok)
		}
	})

	t.Run("defers the review band without reviewers", func(t *testing.T) {
		mem := newMemMemory()
		p := newPolicy(Options{Memory: mem})

		d, err := p.Decide(ctx, queenSubject(scored("t1", 82)))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if d.Kind != models.Deferred {
			t.Errorf("expected Deferred, got %s", d.Kind)
		}
		if mem.puts != 0 {
			t.Errorf("expected deferred decisions not to be committed, got %d puts", mem.puts)
		}
	})

	t.Run("operator accepts a listed candidate", func(t *testing.T) {
		operator := &scriptedReviewer{name: "operator", verdicts: []Verdict{{Action: Accept, CandidateID: "t2"}}}
		p := newPolicy(Options{Memory: newMemMemory(), Operator: operator})

		d, err := p.Decide(ctx, queenSubject(scored("t1", 82), scored("t2", 81)))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if d.Kind != models.ManuallyAccepted || d.Origin != models.OriginOperator || d.CandidateID() != "t2" {
			t.Errorf("unexpected decision %+v", d)
		}
	})

	t.Run("operator answers", func(t *testing.T) {
		tests := []struct {
			name     string
			verdict  Verdict
			expected models.DecisionKind
			origin   models.DecisionOrigin
		}{
			{"reject", Verdict{Action: Reject}, models.Rejected, models.OriginOperator},
			{"defer", Verdict{Action: Defer}, models.Deferred, models.OriginAuto},
			{"no suggestion", Verdict{Action: NoSuggestion}, models.Deferred, models.OriginAuto},
			{"unknown candidate", Verdict{Action: Accept, CandidateID: "nope"}, models.Deferred, models.OriginAuto},
			{"search not offered", Verdict{Action: Search, Query: "queen"}, models.Deferred, models.OriginAuto},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				operator := &scriptedReviewer{name: "operator", verdicts: []Verdict{tt.verdict}}
				p := newPolicy(Options{Operator: operator})

				d, err := p.Decide(ctx, queenSubject(scored("t1", 82)))
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if d.Kind != tt.expected || d.Origin != tt.origin {
					t.Errorf("expected %s/%s, got %s/%s", tt.expected, tt.origin, d.Kind, d.Origin)
				}
			})
		}
	})

	t.Run("oracle", func(t *testing.T) {
		tests := []struct {
			name          string
			verdict       Verdict
			oracleAccepts bool
		}{
			{"confident", Verdict{Action: Accept, CandidateID: "t1", Confidence: 0.9}, true},
			{"at minimum confidence", Verdict{Action: Accept, CandidateID: "t1", Confidence: 0.7}, true},
			{"not confident", Verdict{Action: Accept, CandidateID: "t1", Confidence: 0.5}, false},
			{"unlisted candidate", Verdict{Action: Accept, CandidateID: "zzz", Confidence: 0.95}, false},
			{"no suggestion", Verdict{Action: NoSuggestion}, false},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				oracle := &scriptedReviewer{name: "oracle", verdicts: []Verdict{tt.verdict}}
				operator := &scriptedReviewer{name: "operator", verdicts: []Verdict{{Action: Reject}}}
				p := newPolicy(Options{Oracle: oracle, Operator: operator})

				d, err := p.Decide(ctx, queenSubject(scored("t1", 83)))
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}

				if tt.oracleAccepts {
					if d.Kind != models.ManuallyAccepted || d.Origin != models.OriginOracle {
						t.Errorf("expected oracle acceptance, got %+v", d)
					}
					if operator.calls.Load() != 0 {
						t.Error("expected operator not to be prompted")
					}
					return
				}

				if operator.calls.Load() != 1 {
					t.Errorf("expected operator fallback, got %d prompts", operator.calls.Load())
				}
				if d.Kind != models.Rejected || d.Origin != models.OriginOperator {
					t.Errorf("expected operator rejection, got %+v", d)
				}
			})
		}
	})

	t.Run("oracle is not consulted below the review band", func(t *testing.T) {
		oracle := &scriptedReviewer{name: "oracle", verdicts: []Verdict{{Action: Accept, CandidateID: "t1", Confidence: 1}}}
		p := newPolicy(Options{Oracle: oracle})

		d, _ := p.Decide(ctx, queenSubject(scored("t1", 60)))
		if d.Kind != models.Rejected || oracle.calls.Load() != 0 {
			t.Errorf("expected rejection without oracle, got %+v after %d calls", d, oracle.calls.Load())
		}
	})

	t.Run("rejects low scores when manual search is disabled", func(t *testing.T) {
		operator := &scriptedReviewer{name: "operator"}
		p := newPolicy(Options{Operator: operator})

		d, _ := p.Decide(ctx, queenSubject(scored("t1", 79.99)))
		if d.Kind != models.Rejected || operator.calls.Load() != 0 {
			t.Errorf("expected silent rejection, got %+v after %d prompts", d, operator.calls.Load())
		}
	})

	t.Run("manual search rescored", func(t *testing.T) {
		var queries []string
		search := func(ctx context.Context, query string) ([]models.CatalogCandidate, error) {
			queries = append(queries, query)
			return []models.CatalogCandidate{{ID: "found", Artists: []string{"Queen"}, Title: "Bohemian Rhapsody"}}, nil
		}
		operator := &scriptedReviewer{name: "operator", verdicts: []Verdict{{Action: Search, Query: " Queen - Bohemian Rhapsody "}}}
		th := DefaultThresholds()
		th.ManualSearch = true
		p := newPolicy(Options{Thresholds: th, Operator: operator, Search: search})

		d, err := p.Decide(ctx, queenSubject(scored("t1", 40)))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(queries) != 1 || queries[0] != "Queen - Bohemian Rhapsody" {
			t.Errorf("unexpected queries %q", queries)
		}
		if d.Kind != models.AutoAccepted || d.CandidateID() != "found" {
			t.Errorf("expected rescored auto acceptance, got %+v", d)
		}
	})

	t.Run("manual search rounds are bounded", func(t *testing.T) {
		searches := 0
		search := func(ctx context.Context, query string) ([]models.CatalogCandidate, error) {
			searches++
			return []models.CatalogCandidate{{ID: "other", Artists: []string{"Queen"}, Title: "Radio Ga Ga"}}, nil
		}
		operator := &scriptedReviewer{name: "operator", verdicts: []Verdict{{Action: Search, Query: "queen"}}}
		th := DefaultThresholds()
		th.ManualSearch = true
		th.SearchRounds = 3
		p := newPolicy(Options{Thresholds: th, Operator: operator, Search: search})

		d, err := p.Decide(ctx, queenSubject(scored("t1", 40)))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if searches != 3 {
			t.Errorf("expected 3 searches, got %d", searches)
		}
		if d.Kind != models.Rejected {
			t.Errorf("expected rejection after the last round, got %+v", d)
		}
	})

	t.Run("commit failure defers the entry", func(t *testing.T) {
		mem := newMemMemory()
		mem.err = errors.New("disk full")
		p := newPolicy(Options{Memory: mem})

		d, err := p.Decide(ctx, queenSubject(scored("t1", 95)))
		if err == nil || !strings.Contains(err.Error(), "disk full") {
			t.Errorf("expected commit error, got %v", err)
		}
		if d.Kind != models.Deferred {
			t.Errorf("expected Deferred, got %s", d.Kind)
		}
	})

	t.Run("cancelled review", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		operator := &scriptedReviewer{name: "operator", verdicts: []Verdict{{Action: Accept, CandidateID: "t1"}}}
		p := newPolicy(Options{Operator: operator})

		d, err := p.Decide(cctx, queenSubject(scored("t1", 82)))
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if d.Kind != models.Deferred || operator.calls.Load() != 0 {
			t.Errorf("expected Deferred without prompting, got %+v", d)
		}
	})

	t.Run("one outstanding prompt", func(t *testing.T) {
		var active, peak atomic.Int64
		operator := ReviewerFunc(func(ctx context.Context, req ReviewRequest) (Verdict, error) {
			n := active.Add(1)
			defer active.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			return Verdict{Action: Accept, CandidateID: req.Candidates[0].ID}, nil
		})
		p := newPolicy(Options{Operator: operator})

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.Decide(ctx, queenSubject(scored("t1", 82)))
			}()
		}
		wg.Wait()

		if peak.Load() != 1 {
			t.Errorf("expected one outstanding prompt, got %d", peak.Load())
		}
	})
}

func TestPolicyReject(t *testing.T) {
	mem := newMemMemory()
	p := newPolicy(Options{Memory: mem})
	s := queenSubject()

	d, err := p.Reject(s, "search retries exhausted")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if d.Kind != models.Rejected || d.Reason != "search retries exhausted" {
		t.Errorf("unexpected decision %+v", d)
	}
	if mem.puts != 1 {
		t.Errorf("expected commit, got %d puts", mem.puts)
	}
}

func TestPolicyRecall(t *testing.T) {
	ctx := context.Background()
	s := queenSubject()
	fp := s.Key.Fingerprint()

	tests := []struct {
		name     string
		record   models.DecisionRecord
		mode     RecallMode
		recalled bool
	}{
		{"operator accept", models.DecisionRecord{Kind: models.ManuallyAccepted, CandidateID: "t1", Score: 82, Origin: models.OriginOperator, DecidedAt: fixedNow}, RecallReviewed, true},
		{"operator reject", models.DecisionRecord{Kind: models.Rejected, Score: 82, Origin: models.OriginOperator, DecidedAt: fixedNow}, RecallReviewed, true},
		{"oracle accept", models.DecisionRecord{Kind: models.ManuallyAccepted, CandidateID: "t1", Score: 83, Origin: models.OriginOracle, DecidedAt: fixedNow}, RecallReviewed, true},
		{"auto accept on full sync", models.DecisionRecord{Kind: models.AutoAccepted, CandidateID: "t1", Score: 90, Origin: models.OriginAuto, DecidedAt: fixedNow}, RecallReviewed, false},
		{"auto accept on delta", models.DecisionRecord{Kind: models.AutoAccepted, CandidateID: "t1", Score: 90, Origin: models.OriginAuto, DecidedAt: fixedNow}, RecallAll, true},
		{"auto reject", models.DecisionRecord{Kind: models.Rejected, Score: 10, Origin: models.OriginAuto, DecidedAt: fixedNow}, RecallAll, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := newMemMemory()
			mem.records[s.Playlist+"/"+fp] = tt.record
			p := newPolicy(Options{Memory: mem})

			d, ok, err := p.Recall(ctx, s.Playlist, s.Key, tt.mode)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if ok != tt.recalled {
				t.Fatalf("expected recalled=%v, got %v", tt.recalled, ok)
			}
			if ok && (!d.Recalled || d.Kind != tt.record.Kind || d.CandidateID() != tt.record.CandidateID) {
				t.Errorf("unexpected recalled decision %+v", d)
			}
		})
	}

	t.Run("missing record", func(t *testing.T) {
		p := newPolicy(Options{Memory: newMemMemory()})
		if _, ok, err := p.Recall(ctx, s.Playlist, s.Key, RecallAll); ok || err != nil {
			t.Errorf("expected no recall, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("without memory", func(t *testing.T) {
		p := newPolicy(Options{})
		if _, ok, err := p.Recall(ctx, s.Playlist, s.Key, RecallAll); ok || err != nil {
			t.Errorf("expected no recall, got ok=%v err=%v", ok, err)
		}
	})
}

func TestNewThresholds(t *testing.T) {
	p := New(Options{Thresholds: Thresholds{AutoAccept: 90}})
	th := p.Thresholds()
	if th.Review != 85 || th.SearchRounds != defaultSearchRounds {
		t.Errorf("unexpected derived thresholds %+v", th)
	}

	p = New(Options{})
	if got := p.Thresholds(); got.AutoAccept != 85 || got.Review != 80 || got.OracleMinConfidence != 0.7 {
		t.Errorf("unexpected default thresholds %+v", got)
	}
}
