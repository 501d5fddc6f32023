package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// GetSetting returns the JSON value stored under key.
// The boolean is false when the key is absent.
func (db *DB) GetSetting(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var raw string
	err := db.conn.QueryRowContext(ctx, `SELECT CAST(value AS BLOB) FROM settings WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storageErr("get setting "+key, err)
	}
	return json.RawMessage(raw), true, nil
}

// SetSetting stores value under key. Values are JSON encoded; a
// json.RawMessage is stored as given after validation.
func (db *DB) SetSetting(ctx context.Context, key string, value any) error {
	raw, err := encodeSetting(key, value)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx, `
	INSERT INTO settings (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, string(raw))
	return storageErr("set setting "+key, err)
}

// DeleteSetting removes key. Deleting a missing key is not an error.
func (db *DB) DeleteSetting(ctx context.Context, key string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key)
	return storageErr("delete setting "+key, err)
}

// Settings returns every stored setting.
func (db *DB) Settings(ctx context.Context) (map[string]json.RawMessage, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT key, CAST(value AS BLOB) FROM settings ORDER BY key`)
	if err != nil {
		return nil, storageErr("query settings", err)
	}
	defer rows.Close()

	out := map[string]json.RawMessage{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, storageErr("scan setting", err)
		}
		out[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate settings", err)
	}
	return out, nil
}

// BulkSaveSettings writes every entry in one transaction.
func (db *DB) BulkSaveSettings(ctx context.Context, values map[string]json.RawMessage) error {
	if len(values) == 0 {
		return nil
	}

	encoded := make(map[string]string, len(values))
	for k, v := range values {
		raw, err := encodeSetting(k, v)
		if err != nil {
			return err
		}
		encoded[k] = string(raw)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin transaction", err)
	}
	defer tx.Rollback()

	for k, v := range encoded {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, k, v); err != nil {
			return storageErr("set setting "+k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit settings", err)
	}
	return nil
}

func encodeSetting(key string, value any) (json.RawMessage, error) {
	if key == "" {
		return nil, fmt.Errorf("setting key is required")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode setting %s: %w", key, err)
	}
	return raw, nil
}
