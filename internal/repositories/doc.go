// Package repositories implements SQLite persistence for the reconciliation engine.
//
// Key Implementations:
//   - [DecisionRepository] : session memory, one decision per (playlist, fingerprint), corrupt rows isolated
//   - [SyncStateRepository] : last successful sync of each playlist file
//   - [CandidateCacheRepository] : catalog search results with a fetch timestamp for TTL checks
//   - [RunRepository] : run history implementing models.Repository
//
// Sequence numbers provide stable, human-readable ordering of runs independent of UUIDs and timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
