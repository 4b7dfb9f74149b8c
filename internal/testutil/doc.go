// Package testutil provides deterministic collaborators for beacon tests.
//
// ScriptedTransport replays canned collector outcomes and records every
// request, so pipeline tests can assert on what was sent without a
// network. NewStore opens a schema-ready SQLite store in t.TempDir().
package testutil
