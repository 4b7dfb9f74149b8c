// Package store provides SQLite-backed durable storage for buffered
// telemetry.
//
// Four tables back the pipeline:
//   - events: annotated event payloads awaiting delivery, with a status of
//     "new" or the claim token of the flush that is sending them
//   - sessions: one snapshot per open session, used to synthesize a
//     session end after a crash
//   - state: persisted scalars (identity, counters, dimensions, cached
//     remote config); a nil value deletes the key
//   - progression: per-progression attempt counters
//
// # Failure Model
//
// Every statement failure is logged and returned as a fault.CodeStorage
// error. Callers treat that as "the operation did not happen"; it is
// distinct from an empty result.
//
// INSERT, UPDATE and DELETE statements always run inside a transaction.
//
// # Size Management
//
//   - At EnsureSchema, a database larger than the trim threshold loses the
//     events of its three oldest sessions and is vacuumed.
//   - At runtime, TooLargeForEvents reports the hard cap; admission then
//     only accepts session boundaries and business events.
//
// # Database Configuration
//
//   - WAL mode, synchronous=NORMAL, busy_timeout=5000
//   - One open connection; the store is used from the scheduler goroutine
package store
