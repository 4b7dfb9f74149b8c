package store

import (
	"context"
	"fmt"
)

// SetState writes key. A nil value deletes the key.
func (s *Store) SetState(ctx context.Context, key string, value *string) error {
	var err error
	if value == nil {
		_, err = s.Execute(ctx, "DELETE FROM state WHERE key = ?", []any{key}, true)
	} else {
		_, err = s.Execute(ctx, "INSERT OR REPLACE INTO state (key, value) VALUES (?, ?)", []any{key, *value}, true)
	}
	if err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

// LoadState returns every persisted key. Keys with a NULL value are
// omitted.
func (s *Store) LoadState(ctx context.Context) (map[string]string, error) {
	rows, err := s.Execute(ctx, "SELECT key, value FROM state", nil, false)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	out := make(map[string]string, len(rows))
	for _, row := range rows {
		if row.IsNull("value") {
			continue
		}
		out[row.String("key")] = row.String("value")
	}
	return out, nil
}

// SetProgressionTries persists the attempt counter for id.
func (s *Store) SetProgressionTries(ctx context.Context, id string, tries int) error {
	_, err := s.Execute(ctx,
		"INSERT OR REPLACE INTO progression (progression_id, tries) VALUES (?, ?)",
		[]any{id, tries}, true)
	if err != nil {
		return fmt.Errorf("set progression %s: %w", id, err)
	}
	return nil
}

// DeleteProgression removes the attempt counter for id.
func (s *Store) DeleteProgression(ctx context.Context, id string) error {
	if _, err := s.Execute(ctx, "DELETE FROM progression WHERE progression_id = ?", []any{id}, true); err != nil {
		return fmt.Errorf("delete progression %s: %w", id, err)
	}
	return nil
}

// LoadProgression returns every persisted attempt counter.
func (s *Store) LoadProgression(ctx context.Context) (map[string]int, error) {
	rows, err := s.Execute(ctx, "SELECT progression_id, tries FROM progression", nil, false)
	if err != nil {
		return nil, fmt.Errorf("load progression: %w", err)
	}

	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.String("progression_id")] = int(row.Int64("tries"))
	}
	return out, nil
}
