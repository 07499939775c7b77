// Package journal provides SQLite-backed storage for the observable output
// of simulated host environments.
//
// The journal is an append-only log with:
//   - Sessions: one row per host.Environment (keyed by its session ID)
//   - Records: messages, script events, timer firings and phase
//     transitions, in the order the environment produced them
//
// # Ordering
//
// Records are ordered by (session_id, seq), where seq is the environment's
// own logical counter. Wall time is stored for sessions only and never used
// for ordering, so a replayed scenario produces identical record rows.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Records must belong to a session
package journal
