package store

import (
	"context"
	"fmt"
)

// SessionSnapshot is the last known state of an open session.
type SessionSnapshot struct {
	SessionID   string
	StartedAt   int64
	Annotations []byte
}

// UpsertSession writes or replaces the snapshot for snap.SessionID.
func (s *Store) UpsertSession(ctx context.Context, snap SessionSnapshot) error {
	_, err := s.Execute(ctx, `
		INSERT OR REPLACE INTO sessions (session_id, started_at, annotations)
		VALUES (?, ?, ?)`,
		[]any{snap.SessionID, snap.StartedAt, snap.Annotations},
		true,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// DeleteSession removes the snapshot for id.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.Execute(ctx, "DELETE FROM sessions WHERE session_id = ?", []any{id}, true); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// OpenSessions returns every snapshot except excludeID, ordered by start.
func (s *Store) OpenSessions(ctx context.Context, excludeID string) ([]SessionSnapshot, error) {
	rows, err := s.Execute(ctx, `
		SELECT session_id, started_at, annotations
		FROM sessions
		WHERE session_id != ?
		ORDER BY started_at ASC, session_id ASC`,
		[]any{excludeID}, false)
	if err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}

	snaps := make([]SessionSnapshot, 0, len(rows))
	for _, row := range rows {
		snaps = append(snaps, SessionSnapshot{
			SessionID:   row.String("session_id"),
			StartedAt:   row.Int64("started_at"),
			Annotations: row.Bytes("annotations"),
		})
	}
	return snaps, nil
}
