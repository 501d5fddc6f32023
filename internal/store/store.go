// Package store provides the embedded SQLite record store for daysync.
//
// The store keeps two tables:
//   - todos: one row per task record, keyed by id
//   - settings: a flat key/value space with JSON encoded values
//
// Records are validated before every write. Batches are written in a single
// transaction so a rejected batch leaves no partial state.
//
// The database runs in WAL mode with a busy timeout. The store assumes a
// single writing process; it does not coordinate between processes.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB is the record store.
type DB struct {
	conn   *sql.DB
	path   string
	now    func() time.Time
	logger *slog.Logger
}

// Open creates or opens the store at path.
//
// It fails fast with an *EnvironmentError when path is empty, its directory
// cannot be created or written to, or the database cannot be reached.
// The schema is created if missing.
//
// The caller MUST call Close() when done.
func Open(path string) (*DB, error) {
	return OpenContext(context.Background(), path)
}

// OpenContext is Open with context support.
func OpenContext(ctx context.Context, path string) (*DB, error) {
	if err := CheckEnvironment(path); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, &EnvironmentError{Path: path, Reason: "cannot open database", Err: err}
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, &EnvironmentError{Path: path, Reason: "cannot reach database", Err: err}
	}

	// One writer; SQLite serializes writes anyway.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, p); err != nil {
			_ = conn.Close()
			return nil, &EnvironmentError{Path: path, Reason: "cannot configure database", Err: err}
		}
	}

	db := New(conn, path)
	if err := db.InitSchemaContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// New wraps an already opened connection. The caller is responsible for
// driver specific configuration; InitSchema must be called before use.
func New(conn *sql.DB, path string) *DB {
	return &DB{
		conn:   conn,
		path:   path,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
}

// CheckEnvironment verifies that path can hold a durable database.
func CheckEnvironment(path string) error {
	if path == "" {
		return &EnvironmentError{Path: path, Reason: "no database path configured"}
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &EnvironmentError{Path: path, Reason: "cannot create data directory", Err: err}
	}
	probe, err := os.CreateTemp(dir, ".daysync-probe-*")
	if err != nil {
		return &EnvironmentError{Path: path, Reason: "data directory is not writable", Err: err}
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}

// SetLogger sets the logger used for warnings.
func (db *DB) SetLogger(logger *slog.Logger) {
	if logger != nil {
		db.logger = logger
	}
}

// SetClock replaces the clock used for modification markers.
func (db *DB) SetClock(now func() time.Time) {
	if now != nil {
		db.now = now
	}
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		db.logger.Warn("failed to checkpoint WAL", "path", db.path, "error", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the tables if they don't exist. Idempotent.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the tables with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS todos (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TEXT NOT NULL,
		created_key TEXT NOT NULL DEFAULT '',  -- sortable form of created_at
		modified_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL  -- JSON
	);

	CREATE INDEX IF NOT EXISTS idx_todos_date ON todos(date);
	CREATE INDEX IF NOT EXISTS idx_todos_created ON todos(created_key, created_at);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return storageErr("initialize schema", err)
	}
	return nil
}

func (db *DB) stamp() string {
	return db.now().UTC().Format(timestampLayout)
}

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"
