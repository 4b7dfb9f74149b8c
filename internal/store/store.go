package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync/atomic"

	_ "github.com/mattn/go-sqlite3"
)

const (
	// DefaultMaxSizeBytes is the hard cap above which non-critical events
	// are refused.
	DefaultMaxSizeBytes int64 = 6291456

	// DefaultTrimSizeBytes is the size above which EnsureSchema trims the
	// oldest sessions.
	DefaultTrimSizeBytes int64 = 5242880
)

// Store is the durable local buffer for telemetry.
type Store struct {
	db        *sql.DB
	path      string
	maxBytes  int64
	trimBytes int64
	logger    *slog.Logger
	ready     atomic.Bool
}

// Option configures a Store.
type Option func(*Store)

// WithSizeLimits overrides the hard cap and the startup trim threshold.
func WithSizeLimits(maxBytes, trimBytes int64) Option {
	return func(s *Store) {
		if maxBytes > 0 {
			s.maxBytes = maxBytes
		}
		if trimBytes > 0 {
			s.trimBytes = trimBytes
		}
	}
}

// WithLogger sets the logger used for statement failures and trimming.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// Open creates or opens a SQLite database at path and applies pragmas.
// Tables are created by EnsureSchema.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer; the scheduler is the only user anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	s := &Store{
		db:        db,
		path:      path,
		maxBytes:  DefaultMaxSizeBytes,
		trimBytes: DefaultTrimSizeBytes,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	s.ready.Store(false)
	return s.db.Close()
}

// DB returns the underlying sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database path given to Open.
func (s *Store) Path() string {
	return s.path
}

// Ready reports whether EnsureSchema completed successfully.
func (s *Store) Ready() bool {
	return s.ready.Load()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// DBSizeBytes returns the logical database size. Returns 0 when the size
// cannot be read.
func (s *Store) DBSizeBytes(ctx context.Context) int64 {
	rows, err := s.Execute(ctx,
		"SELECT page_count * page_size AS size FROM pragma_page_count(), pragma_page_size()",
		nil, false)
	if err != nil || len(rows) == 0 {
		return 0
	}
	return rows[0].Int64("size")
}

// TooLargeForEvents reports whether the database exceeds the hard cap.
func (s *Store) TooLargeForEvents(ctx context.Context) bool {
	return s.DBSizeBytes(ctx) > s.maxBytes
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
