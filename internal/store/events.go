package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/beacon/internal/fault"
)

// StatusNew marks an event that no flush has claimed.
const StatusNew = "new"

// EventRecord is one row of the events table.
type EventRecord struct {
	RowID     int64
	Status    string
	Category  string
	SessionID string
	ClientTS  int64
	Payload   []byte
}

// InsertEvent appends an event with status "new".
func (s *Store) InsertEvent(ctx context.Context, rec EventRecord) error {
	_, err := s.Execute(ctx, `
		INSERT INTO events (status, category, session_id, client_ts, payload)
		VALUES (?, ?, ?, ?, ?)`,
		[]any{StatusNew, rec.Category, rec.SessionID, rec.ClientTS, rec.Payload},
		true,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ResetClaims returns every claimed event to "new". Used at flush cleanup
// to recover batches orphaned by a crash mid-send.
func (s *Store) ResetClaims(ctx context.Context) (int64, error) {
	return s.execAffected(ctx, "reset claims",
		"UPDATE events SET status = ? WHERE status != ?", StatusNew, StatusNew)
}

// ClaimBatch marks at most limit "new" events, oldest by client_ts first,
// with token and returns them in that order. An empty category claims
// across all categories.
//
// The claim and the read happen in one transaction, so a batch is never
// visible half-claimed.
func (s *Store) ClaimBatch(ctx context.Context, category, token string, limit int) ([]EventRecord, error) {
	filter := ""
	args := []any{token, StatusNew}
	if category != "" {
		filter = " AND category = ?"
		args = append(args, category)
	}
	args = append(args, limit)

	var claimed []EventRecord
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE events SET status = ?
			WHERE rowid IN (
				SELECT rowid FROM events
				WHERE status = ?`+filter+`
				ORDER BY client_ts ASC, rowid ASC
				LIMIT ?
			)`, args...)
		if err != nil {
			return fmt.Errorf("claim events: %w", err)
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT rowid, status, category, session_id, client_ts, payload
			FROM events
			WHERE status = ?
			ORDER BY client_ts ASC, rowid ASC`, token)
		if err != nil {
			return fmt.Errorf("read claimed events: %w", err)
		}
		claimed, err = scanEvents(rows)
		return err
	})
	if err != nil {
		s.logger.Warn("claim batch failed", "token", token, "error", err)
		return nil, fault.Storage("claim batch", err)
	}
	return claimed, nil
}

// DeleteClaimed removes every event claimed with token.
func (s *Store) DeleteClaimed(ctx context.Context, token string) (int64, error) {
	return s.execAffected(ctx, "delete claimed",
		"DELETE FROM events WHERE status = ?", token)
}

// ReleaseClaimed returns events claimed with token to "new".
func (s *Store) ReleaseClaimed(ctx context.Context, token string) (int64, error) {
	return s.execAffected(ctx, "release claimed",
		"UPDATE events SET status = ? WHERE status = ?", StatusNew, token)
}

// CountEvents counts events with the given status. An empty category
// counts across all categories.
func (s *Store) CountEvents(ctx context.Context, status, category string) (int, error) {
	query := "SELECT COUNT(*) AS n FROM events WHERE status = ?"
	args := []any{status}
	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	rows, err := s.Execute(ctx, query, args, false)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return int(rows[0].Int64("n")), nil
}

// Events returns all events, oldest first. Returns empty slice (not nil)
// if the table is empty.
func (s *Store) Events(ctx context.Context) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rowid, status, category, session_id, client_ts, payload
		FROM events
		ORDER BY client_ts ASC, rowid ASC`)
	if err != nil {
		return nil, fault.Storage("read events", err)
	}
	recs, err := scanEvents(rows)
	if err != nil {
		return nil, fault.Storage("read events", err)
	}
	return recs, nil
}

func scanEvents(rows *sql.Rows) ([]EventRecord, error) {
	defer rows.Close()

	recs := []EventRecord{}
	for rows.Next() {
		var rec EventRecord
		if err := rows.Scan(&rec.RowID, &rec.Status, &rec.Category, &rec.SessionID, &rec.ClientTS, &rec.Payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return recs, nil
}
