// Package tasks drives local playlist files through the reconciliation pipeline with real-time progress reporting.
//
// # Pipeline
//
// [ReconcileEngine.RunPlaylist] processes one file:
//
//  1. Parse the file ([parser.ParseFile]); malformed lines are skipped and counted
//  2. Normalize every entry and ask the [SyncController] for a [SyncPlan]
//  3. Unchanged playlists stop here without any catalog query
//  4. Resolve entries concurrently: recall from session memory, search, score, decide
//  5. Write accepted tracks to the optional sink, then advance the stored sync
//     state once every entry is terminal
//
// [ReconcileEngine.Run] expands directories, runs playlists on a worker pool
// and aggregates a [RunSummary], persisted through an optional [RunRecorder].
//
// # Sync Plans
//
// A playlist is compared with its last successful sync by content hash. Small
// edits (within [SyncController.Budget]) produce a Delta plan: unchanged entries
// may replay automatic acceptances, new entries are resolved from scratch.
// Missing or corrupt state falls back to a full sync.
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
//
// # Failures
//
// Transient search failures are retried by the search client; exhausted entries
// are rejected without affecting their siblings. Authentication failures and
// cancellation abort the run.
package tasks
