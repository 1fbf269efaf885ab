package store

import (
	"context"
	"database/sql"
	"fmt"
)

// GetSetting returns the value of a named setting, or ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, name string) (string, error) {
	var value string
	if err := s.db.GetContext(ctx, &value, s.rebind("SELECT value FROM settings WHERE name = ?"), name); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting stores a named setting, replacing any existing value.
func (s *Store) SetSetting(ctx context.Context, name, value string) error {
	result, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE settings SET value = ? WHERE name = ?"), value, name)
	if err != nil {
		return fmt.Errorf("update setting: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update setting rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		s.rebind("INSERT INTO settings (name, value) VALUES (?, ?)"), name, value)
	if err != nil {
		return fmt.Errorf("insert setting: %w", err)
	}
	return nil
}
