// Package journal provides SQLite-backed bookkeeping for pipeline runs.
//
// The journal records:
//   - Runs: one row per invocation with the audit triple, the gate decision
//     and per-stage tallies
//   - Row outcomes: the typed result of every processed row, per stage
//   - External records: the last hosted record id written per identity key
//
// The journal is advisory. The local working copy and the hosted store stay
// authoritative; a missing or deleted journal never changes what a run does.
//
// # Idempotency
//
//   - UNIQUE(run_id, stage, identity_key) on row_outcomes with
//     ON CONFLICT DO NOTHING, so re-recording an outcome is a no-op
//   - external_records is keyed by identity key and upserted
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Statements are built with squirrel and executed through database/sql.
package journal
