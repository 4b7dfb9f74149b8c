package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
)

// createTestStore opens a store in a temp dir with the schema in place.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.EnsureSchema(context.Background(), false); err != nil {
		t.Fatalf("EnsureSchema() failed: %v", err)
	}
	return s
}

// insertTestEvent inserts an event with a placeholder payload.
func insertTestEvent(t *testing.T, s *Store, category, sessionID string, ts int64) {
	t.Helper()
	err := s.InsertEvent(context.Background(), EventRecord{
		Category:  category,
		SessionID: sessionID,
		ClientTS:  ts,
		Payload:   []byte{0xa0},
	})
	if err != nil {
		t.Fatalf("InsertEvent() failed: %v", err)
	}
}

func countNew(t *testing.T, s *Store, category string) int {
	t.Helper()
	n, err := s.CountEvents(context.Background(), StatusNew, category)
	if err != nil {
		t.Fatalf("CountEvents() failed: %v", err)
	}
	return n
}
