package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mschirtzinger/daysync/internal/schema"
)

// todoColumns are read as blobs so that drivers which convert
// datetime-looking text (libSQL) hand back the stored bytes unchanged.
const todoColumns = `CAST(id AS BLOB), CAST(date AS BLOB), CAST(title AS BLOB), CAST(content AS BLOB), CAST(created_at AS BLOB)`

// GetByID returns the record with the given id, or ErrNotFound.
func (db *DB) GetByID(id string) (*schema.TaskRecord, error) {
	return db.GetByIDContext(context.Background(), id)
}

// GetByIDContext is GetByID with context support.
func (db *DB) GetByIDContext(ctx context.Context, id string) (*schema.TaskRecord, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+todoColumns+` FROM todos WHERE id = ?`, id)

	var r schema.TaskRecord
	err := row.Scan(&r.ID, &r.Date, &r.Title, &r.Content, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("todo %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, storageErr("get todo "+id, err)
	}
	return &r, nil
}

// GetByDate returns the records whose date string equals date exactly,
// newest first.
func (db *DB) GetByDate(date string) ([]schema.TaskRecord, error) {
	return db.GetByDateContext(context.Background(), date)
}

// GetByDateContext is GetByDate with context support.
func (db *DB) GetByDateContext(ctx context.Context, date string) ([]schema.TaskRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT `+todoColumns+` FROM todos
	WHERE date = ?
	ORDER BY created_key DESC, created_at DESC, rowid DESC
	`, date)
	if err != nil {
		return nil, storageErr("query todos by date", err)
	}
	defer rows.Close()
	return scanTodos(rows)
}

// GetRecent returns up to limit records ordered by createdAt, newest first.
// A limit <= 0 returns every record.
func (db *DB) GetRecent(limit int) ([]schema.TaskRecord, error) {
	return db.GetRecentContext(context.Background(), limit)
}

// GetRecentContext is GetRecent with context support.
func (db *DB) GetRecentContext(ctx context.Context, limit int) ([]schema.TaskRecord, error) {
	query := `
	SELECT ` + todoColumns + ` FROM todos
	ORDER BY created_key DESC, created_at DESC, rowid DESC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("query recent todos", err)
	}
	defer rows.Close()
	return scanTodos(rows)
}

// All returns every record, newest first.
func (db *DB) All(ctx context.Context) ([]schema.TaskRecord, error) {
	return db.GetRecentContext(ctx, 0)
}

// Count returns the number of stored records.
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM todos`).Scan(&n); err != nil {
		return 0, storageErr("count todos", err)
	}
	return n, nil
}

// Save validates and upserts a single record, stamping its modification
// marker.
func (db *DB) Save(r schema.TaskRecord) error {
	return db.SaveContext(context.Background(), r)
}

// SaveContext is Save with context support.
func (db *DB) SaveContext(ctx context.Context, r schema.TaskRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}

	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO todos (id, date, title, content, created_at, created_key, modified_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		date = excluded.date,
		title = excluded.title,
		content = excluded.content,
		created_at = excluded.created_at,
		created_key = excluded.created_key,
		modified_at = excluded.modified_at
	`, r.ID, r.Date, r.Title, r.Content, r.CreatedAt, schema.SortKey(r.CreatedAt), db.stamp())
	return storageErr("save todo "+r.ID, err)
}

// BulkSave validates every record and then upserts them in one transaction.
// If any record is invalid nothing is written. Existing rows keep their
// modification marker; new rows are stamped.
func (db *DB) BulkSave(records []schema.TaskRecord) error {
	return db.BulkSaveContext(context.Background(), records)
}

// BulkSaveContext is BulkSave with context support.
func (db *DB) BulkSaveContext(ctx context.Context, records []schema.TaskRecord) error {
	if err := schema.ValidateAll(records); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin transaction", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO todos (id, date, title, content, created_at, created_key, modified_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		date = excluded.date,
		title = excluded.title,
		content = excluded.content,
		created_at = excluded.created_at,
		created_key = excluded.created_key
	`)
	if err != nil {
		return storageErr("prepare bulk save", err)
	}
	defer stmt.Close()

	stamp := db.stamp()
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.ID, r.Date, r.Title, r.Content, r.CreatedAt, schema.SortKey(r.CreatedAt), stamp); err != nil {
			return storageErr("save todo "+r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storageErr("commit bulk save", err)
	}
	return nil
}

// UpdateContent replaces the content of an existing record in place.
// Returns ErrNotFound if the record does not exist.
func (db *DB) UpdateContent(id, content string) error {
	return db.UpdateContentContext(context.Background(), id, content)
}

// UpdateContentContext is UpdateContent with context support.
func (db *DB) UpdateContentContext(ctx context.Context, id, content string) error {
	current, err := db.GetByIDContext(ctx, id)
	if err != nil {
		return err
	}
	current.Content = content
	if err := current.Validate(); err != nil {
		return err
	}

	res, err := db.conn.ExecContext(ctx, `UPDATE todos SET content = ?, modified_at = ? WHERE id = ?`,
		content, db.stamp(), id)
	if err != nil {
		return storageErr("update todo "+id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("todo %s: %w", id, ErrNotFound)
	}
	return nil
}

// Delete removes a record. Deleting a missing record is not an error.
func (db *DB) Delete(id string) error {
	return db.DeleteContext(context.Background(), id)
}

// DeleteContext is Delete with context support.
func (db *DB) DeleteContext(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, id)
	return storageErr("delete todo "+id, err)
}

// Clear removes every record. Settings are kept.
func (db *DB) Clear() error {
	return db.ClearContext(context.Background())
}

// ClearContext is Clear with context support.
func (db *DB) ClearContext(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM todos`)
	return storageErr("clear todos", err)
}

// ModifiedAt returns the last local modification time of a record.
// The boolean is false when the record does not exist.
func (db *DB) ModifiedAt(ctx context.Context, id string) (time.Time, bool, error) {
	var raw string
	err := db.conn.QueryRowContext(ctx, `SELECT CAST(modified_at AS BLOB) FROM todos WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, storageErr("read modification marker for "+id, err)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, storageErr("parse modification marker for "+id, err)
	}
	return t, true, nil
}

func scanTodos(rows *sql.Rows) ([]schema.TaskRecord, error) {
	records := []schema.TaskRecord{}
	for rows.Next() {
		var r schema.TaskRecord
		if err := rows.Scan(&r.ID, &r.Date, &r.Title, &r.Content, &r.CreatedAt); err != nil {
			return nil, storageErr("scan todo", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate todos", err)
	}
	return records, nil
}
