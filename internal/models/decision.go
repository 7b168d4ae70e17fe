package models

import (
	"fmt"
	"time"
)

// DecisionKind enumerates the outcomes of reconciling one entry.
type DecisionKind string

const (
	AutoAccepted     DecisionKind = "auto_accepted"
	ManuallyAccepted DecisionKind = "manually_accepted"
	Rejected         DecisionKind = "rejected"
	Deferred         DecisionKind = "deferred"
)

// Terminal reports whether the kind ends the entry's reconciliation.
func (k DecisionKind) Terminal() bool {
	switch k {
	case AutoAccepted, ManuallyAccepted, Rejected:
		return true
	default:
		return false
	}
}

// Accepted reports whether the kind contributes a track to the write sink.
func (k DecisionKind) Accepted() bool {
	return k == AutoAccepted || k == ManuallyAccepted
}

// DecisionOrigin records who made a decision.
type DecisionOrigin string

const (
	OriginAuto     DecisionOrigin = "auto"
	OriginOperator DecisionOrigin = "operator"
	OriginOracle   DecisionOrigin = "oracle"
)

// MatchDecision is the outcome for one [LocalTrackEntry].
//
// Candidate is set for accepted kinds only.
type MatchDecision struct {
	Kind      DecisionKind
	Candidate *ScoredCandidate
	Score     float64
	Origin    DecisionOrigin
	Reason    string
	DecidedAt time.Time
	Recalled  bool
}

// Terminal reports whether the decision ends the entry's reconciliation.
func (d MatchDecision) Terminal() bool { return d.Kind.Terminal() }

// CandidateID returns the accepted catalog ID or "".
func (d MatchDecision) CandidateID() string {
	if d.Candidate == nil {
		return ""
	}
	return d.Candidate.ID
}

// Record converts a terminal decision into its persisted form.
func (d MatchDecision) Record() DecisionRecord {
	return DecisionRecord{
		Kind:        d.Kind,
		CandidateID: d.CandidateID(),
		Score:       d.Score,
		Origin:      d.Origin,
		Reason:      d.Reason,
		DecidedAt:   d.DecidedAt.UTC(),
	}
}

// DecisionRecord is the session memory payload for one terminal decision.
type DecisionRecord struct {
	Kind        DecisionKind   `json:"kind"`
	CandidateID string         `json:"candidate_id,omitempty"`
	Score       float64        `json:"score"`
	Origin      DecisionOrigin `json:"origin"`
	Reason      string         `json:"reason,omitempty"`
	DecidedAt   time.Time      `json:"decided_at"`
}

// Validate rejects records that no code path could have written.
func (r DecisionRecord) Validate() error {
	if !r.Kind.Terminal() {
		return fmt.Errorf("non-terminal decision kind %q", r.Kind)
	}
	if r.Kind.Accepted() && r.CandidateID == "" {
		return fmt.Errorf("%s decision without candidate", r.Kind)
	}
	if r.Score < 0 || r.Score > 100 {
		return fmt.Errorf("score %.2f out of range", r.Score)
	}
	switch r.Origin {
	case OriginAuto, OriginOperator, OriginOracle:
	default:
		return fmt.Errorf("unknown decision origin %q", r.Origin)
	}
	if r.DecidedAt.IsZero() {
		return fmt.Errorf("missing decision timestamp")
	}
	return nil
}

// Decision rebuilds a recalled [MatchDecision]. The candidate carries only its ID.
func (r DecisionRecord) Decision() MatchDecision {
	d := MatchDecision{
		Kind:      r.Kind,
		Score:     r.Score,
		Origin:    r.Origin,
		Reason:    r.Reason,
		DecidedAt: r.DecidedAt,
		Recalled:  true,
	}
	if r.CandidateID != "" {
		d.Candidate = &ScoredCandidate{
			CatalogCandidate: CatalogCandidate{ID: r.CandidateID},
			Score:            r.Score,
		}
	}
	return d
}
