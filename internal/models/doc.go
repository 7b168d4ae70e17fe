// Package models defines the data model for playlist reconciliation.
//
// The package contains three groups of types:
//
//  1. Pipeline values, immutable once produced by their stage:
//     - [LocalTrackEntry] : one parsed line of a local playlist file
//     - [NormalizedKey] : canonical artist/title/featuring used for search, caching and memory
//     - [CatalogCandidate] : a remote catalog track returned by search
//     - [ScoredCandidate] : a candidate with its score and sub-scores
//
//  2. Decisions and state:
//     - [MatchDecision] : the outcome for one entry (auto/manual accept, reject, defer)
//     - [DecisionRecord] : the persisted form of a terminal decision
//     - [PlaylistSyncState] : last successful sync of a playlist file
//
//  3. Persistent entities implementing [Model]:
//     - [RunRecord] : one reconcile run with its summary counts
//
// The Repository[T] interface defines standard CRUD operations for database access.
package models
