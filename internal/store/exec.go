package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"

	"github.com/roach88/beacon/internal/fault"
)

// mutating matches statements that are always run inside a transaction.
var mutating = regexp.MustCompile(`(?i)^\s*(UPDATE|INSERT|DELETE)\b`)

// returnsRows matches statements executed with Query rather than Exec.
var returnsRows = regexp.MustCompile(`(?i)^\s*(SELECT|PRAGMA|WITH)\b`)

// Row is one result row keyed by column name. BLOB and TEXT values arrive
// as []byte or string depending on the declared column type.
type Row map[string]any

// Rows is a statement result. A successful statement with no rows yields
// an empty, non-nil Rows.
type Rows []Row

// String returns the column as a string, or "" when NULL or missing.
func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// Int64 returns the column as an integer, or 0 when NULL or unparseable.
func (r Row) Int64(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case []byte:
		n, _ := strconv.ParseInt(string(v), 10, 64)
		return n
	default:
		return 0
	}
}

// Bytes returns the column as raw bytes, or nil when NULL.
func (r Row) Bytes(col string) []byte {
	switch v := r[col].(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return nil
	}
}

// IsNull reports whether the column is NULL or missing.
func (r Row) IsNull(col string) bool {
	return r[col] == nil
}

// Execute runs one statement and returns its rows.
//
// INSERT, UPDATE and DELETE are wrapped in a transaction regardless of
// useTx. On failure the transaction is rolled back, the error is logged
// and a fault.CodeStorage error is returned.
func (s *Store) Execute(ctx context.Context, query string, args []any, useTx bool) (Rows, error) {
	if mutating.MatchString(query) {
		useTx = true
	}

	var (
		rows Rows
		err  error
	)
	if useTx {
		err = s.withTx(ctx, func(tx *sql.Tx) error {
			rows, err = run(ctx, tx, query, args)
			return err
		})
	} else {
		rows, err = run(ctx, s.db, query, args)
	}
	if err != nil {
		s.logger.Warn("store statement failed",
			"query", query,
			"error", err,
		)
		return nil, fault.Storage("execute", err)
	}
	return rows, nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func run(ctx context.Context, q queryer, query string, args []any) (Rows, error) {
	if !returnsRows.MatchString(query) {
		if _, err := q.ExecContext(ctx, query, args...); err != nil {
			return nil, err
		}
		return Rows{}, nil
	}

	r, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collect(r)
}

func collect(r *sql.Rows) (Rows, error) {
	defer r.Close()

	cols, err := r.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	out := Rows{}
	for r.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := r.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		row := make(Row, len(cols))
		for i, col := range cols {
			v := vals[i]
			// The driver reuses byte buffers between rows.
			if b, ok := v.([]byte); ok {
				v = append([]byte(nil), b...)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// withTx runs fn in a transaction, committing on success.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// execAffected runs a mutating statement in a transaction and returns the
// number of affected rows.
func (s *Store) execAffected(ctx context.Context, op, query string, args ...any) (int64, error) {
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		s.logger.Warn("store statement failed",
			"op", op,
			"error", err,
		)
		return 0, fault.Storage(op, err)
	}
	return n, nil
}
