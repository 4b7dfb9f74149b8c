package store

import (
	"context"
	"fmt"
)

// Stats summarizes the buffer for inspection.
type Stats struct {
	Pending      int            `json:"pending"`
	Claimed      int            `json:"claimed"`
	ByCategory   map[string]int `json:"by_category"`
	OpenSessions int            `json:"open_sessions"`
	StateKeys    int            `json:"state_keys"`
	SizeBytes    int64          `json:"size_bytes"`
}

// Stats reads buffer counts in one pass per table.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{ByCategory: map[string]int{}}

	rows, err := s.Execute(ctx, `
		SELECT category, status = ? AS is_new, COUNT(*) AS n
		FROM events
		GROUP BY category, is_new`, []any{StatusNew}, false)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	for _, row := range rows {
		n := int(row.Int64("n"))
		if row.Int64("is_new") == 1 {
			st.Pending += n
			st.ByCategory[row.String("category")] += n
		} else {
			st.Claimed += n
		}
	}

	counts, err := s.Execute(ctx, `
		SELECT
			(SELECT COUNT(*) FROM sessions) AS sessions,
			(SELECT COUNT(*) FROM state WHERE value IS NOT NULL) AS state_keys`, nil, false)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	st.OpenSessions = int(counts[0].Int64("sessions"))
	st.StateKeys = int(counts[0].Int64("state_keys"))
	st.SizeBytes = s.DBSizeBytes(ctx)
	return st, nil
}
