package store

import (
	"context"
	"fmt"
	"strings"
)

// Schema version tracking:
// 1 - events, sessions, state, progression
const currentSchemaVersion = 1

// table describes one table: how to create it, how to probe that its
// columns are readable, and any indexes created once it is healthy.
type table struct {
	name    string
	create  string
	probe   string
	indexes []string
}

var tables = []table{
	{
		name: "events",
		create: `CREATE TABLE IF NOT EXISTS events (
			status TEXT NOT NULL,
			category TEXT NOT NULL,
			session_id TEXT NOT NULL,
			client_ts INTEGER NOT NULL,
			payload BLOB NOT NULL
		)`,
		probe: "SELECT status, category, session_id, client_ts, payload FROM events LIMIT 1",
		indexes: []string{
			"CREATE INDEX IF NOT EXISTS idx_events_status_ts ON events(status, client_ts)",
		},
	},
	{
		name: "sessions",
		create: `CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY NOT NULL,
			started_at INTEGER NOT NULL,
			annotations BLOB NOT NULL
		)`,
		probe: "SELECT session_id, started_at, annotations FROM sessions LIMIT 1",
	},
	{
		name: "state",
		create: `CREATE TABLE IF NOT EXISTS state (
			key TEXT PRIMARY KEY NOT NULL,
			value TEXT
		)`,
		probe: "SELECT key, value FROM state LIMIT 1",
	},
	{
		name: "progression",
		create: `CREATE TABLE IF NOT EXISTS progression (
			progression_id TEXT PRIMARY KEY NOT NULL,
			tries INTEGER NOT NULL
		)`,
		probe: "SELECT progression_id, tries FROM progression LIMIT 1",
	},
}

// trimSessionCount is how many of the oldest sessions a trim removes.
const trimSessionCount = 3

// EnsureSchema creates the four tables, optionally dropping them first.
//
// Each table is probed after creation; a table whose columns cannot be
// read is dropped and recreated on its own, leaving the other tables
// intact. Afterwards an oversized database is trimmed.
//
// This function is idempotent.
func (s *Store) EnsureSchema(ctx context.Context, drop bool) error {
	s.ready.Store(false)

	if drop {
		for _, t := range tables {
			if _, err := s.Execute(ctx, "DROP TABLE IF EXISTS "+t.name, nil, false); err != nil {
				return fmt.Errorf("drop table %s: %w", t.name, err)
			}
		}
		if _, err := s.Execute(ctx, "VACUUM", nil, false); err != nil {
			return fmt.Errorf("vacuum after drop: %w", err)
		}
	}

	for _, t := range tables {
		if err := s.ensureTable(ctx, t); err != nil {
			return err
		}
	}

	if _, err := s.Execute(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion), nil, false); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	s.ready.Store(true)
	s.trimIfNeeded(ctx)
	return nil
}

// CheckSchema probes every table without creating, repairing or
// trimming anything. The store is ready only if every probe succeeds.
func (s *Store) CheckSchema(ctx context.Context) error {
	s.ready.Store(false)
	for _, t := range tables {
		if _, err := s.Execute(ctx, t.probe, nil, false); err != nil {
			return fmt.Errorf("probe table %s: %w", t.name, err)
		}
	}
	s.ready.Store(true)
	return nil
}

func (s *Store) ensureTable(ctx context.Context, t table) error {
	if _, err := s.Execute(ctx, t.create, nil, false); err != nil {
		return fmt.Errorf("create table %s: %w", t.name, err)
	}

	if _, err := s.Execute(ctx, t.probe, nil, false); err != nil {
		s.logger.Warn("table unreadable, recreating", "table", t.name)

		if _, err := s.Execute(ctx, "DROP TABLE "+t.name, nil, false); err != nil {
			return fmt.Errorf("drop corrupt table %s: %w", t.name, err)
		}
		if _, err := s.Execute(ctx, t.create, nil, false); err != nil {
			return fmt.Errorf("recreate table %s: %w", t.name, err)
		}
		if _, err := s.Execute(ctx, t.probe, nil, false); err != nil {
			return fmt.Errorf("probe recreated table %s: %w", t.name, err)
		}
	}

	for _, idx := range t.indexes {
		if _, err := s.Execute(ctx, idx, nil, false); err != nil {
			return fmt.Errorf("create index on %s: %w", t.name, err)
		}
	}
	return nil
}

// trimIfNeeded deletes the events of the oldest sessions, by latest event
// timestamp, when the database exceeds the trim threshold.
func (s *Store) trimIfNeeded(ctx context.Context) {
	before := s.DBSizeBytes(ctx)
	if before <= s.trimBytes {
		return
	}

	rows, err := s.Execute(ctx, `
		SELECT session_id, MAX(client_ts) AS last_ts
		FROM events
		GROUP BY session_id
		ORDER BY last_ts ASC, session_id ASC
		LIMIT ?`, []any{trimSessionCount}, false)
	if err != nil || len(rows) == 0 {
		return
	}

	args := make([]any, len(rows))
	marks := make([]string, len(rows))
	for i, row := range rows {
		args[i] = row.String("session_id")
		marks[i] = "?"
	}

	query := "DELETE FROM events WHERE session_id IN (" + strings.Join(marks, ", ") + ")"
	if _, err := s.Execute(ctx, query, args, true); err != nil {
		return
	}
	if _, err := s.Execute(ctx, "VACUUM", nil, false); err != nil {
		return
	}

	s.logger.Info("database trimmed",
		"sessions", len(rows),
		"size_before", before,
		"size_after", s.DBSizeBytes(ctx),
	)
}
