package database

import (
	"encoding/json"
	"fmt"
)

// GetAllSettings returns every stored setting decoded from JSON.
// Numbers decode as float64, lists as []any.
func (db *DB) GetAllSettings() (map[string]any, error) {
	rows, err := db.conn.Query("SELECT name, value FROM settings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]any)
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, err
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decoding setting %s: %w", name, err)
		}
		settings[name] = v
	}
	return settings, rows.Err()
}

// UpsertSetting stores a JSON-encoded setting value.
func (db *DB) UpsertSetting(name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding setting %s: %w", name, err)
	}
	_, err = db.conn.Exec(
		`INSERT INTO settings (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`,
		name, string(raw),
	)
	return err
}

// SeedSettings stores values only for names not yet present.
// Returns the number of settings written.
func (db *DB) SeedSettings(values map[string]any) (int, error) {
	written := 0
	for name, value := range values {
		raw, err := json.Marshal(value)
		if err != nil {
			return written, fmt.Errorf("encoding setting %s: %w", name, err)
		}
		res, err := db.conn.Exec(
			"INSERT OR IGNORE INTO settings (name, value) VALUES (?, ?)", name, string(raw),
		)
		if err != nil {
			return written, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			written++
		}
	}
	return written, nil
}
