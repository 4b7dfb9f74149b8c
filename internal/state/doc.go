// Package state owns the process-wide session state: identity, session
// lifecycle, enablement, the client/server clock offset and the tiered
// remote configuration.
//
// Lifecycle:
//
//	Uninitialized → Initializing → SessionActive ⇄ SessionIdle
//
// Initialize loads persisted scalars and runs the session-start protocol.
// EndSession closes the open session and halts the periodic flush;
// ResumeSession opens a new one if none is open.
//
// Every mutating method runs on the scheduler goroutine. The remote
// config accessors and Initialized are safe from any goroutine.
package state
