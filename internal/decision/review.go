package decision

import (
	"context"

	"github.com/desertthunder/plsync/internal/models"
)

// Action is a reviewer's answer to a [ReviewRequest].
type Action int

const (
	NoSuggestion Action = iota
	Accept
	Reject
	Defer
	Search
)

func (a Action) String() string {
	switch a {
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	case Defer:
		return "defer"
	case Search:
		return "search"
	default:
		return "no suggestion"
	}
}

// Verdict is the answer returned by a [Reviewer].
//
// CandidateID is set for [Accept] and Query for [Search].
type Verdict struct {
	Action      Action
	CandidateID string
	Query       string
	Confidence  float64 // 0..1, oracle answers only
	Notes       string
}

// ReviewRequest describes an ambiguous entry and its ranked candidates.
type ReviewRequest struct {
	Playlist    string
	Entry       models.LocalTrackEntry
	Key         models.NormalizedKey
	Candidates  []models.ScoredCandidate
	Round       int  // manual search rounds already made
	LowScore    bool // best score is below the review threshold
	AllowSearch bool // a Search verdict will be honoured
}

// Reviewer resolves entries the policy cannot decide on its own.
type Reviewer interface {
	Name() string
	Review(ctx context.Context, req ReviewRequest) (Verdict, error)
}

// ReviewerFunc adapts a function to the [Reviewer] interface.
type ReviewerFunc func(ctx context.Context, req ReviewRequest) (Verdict, error)

func (f ReviewerFunc) Name() string { return "func" }

func (f ReviewerFunc) Review(ctx context.Context, req ReviewRequest) (Verdict, error) {
	return f(ctx, req)
}

func findCandidate(candidates []models.ScoredCandidate, id string) (models.ScoredCandidate, bool) {
	if id == "" {
		return models.ScoredCandidate{}, false
	}
	for _, c := range candidates {
		if c.ID == id {
			return c, true
		}
	}
	return models.ScoredCandidate{}, false
}
