package testutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/roach88/beacon/internal/store"
)

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewStore opens a store in t.TempDir(), ensures the schema and closes
// it on cleanup.
func NewStore(t testing.TB, opts ...store.Option) *store.Store {
	t.Helper()

	opts = append([]store.Option{store.WithLogger(DiscardLogger())}, opts...)
	s, err := store.Open(filepath.Join(t.TempDir(), "beacon.db"), opts...)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.EnsureSchema(context.Background(), false); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return s
}
