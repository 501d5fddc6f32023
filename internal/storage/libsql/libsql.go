//go:build cgo

// Package libsql provides a storage backend that reaches the record store
// through the libSQL driver instead of the embedded WASM SQLite build.
//
// Importing the package registers the "libsql" backend.
package libsql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/mschirtzinger/daysync/internal/storage"
	"github.com/mschirtzinger/daysync/internal/store"
)

// BackendName is the name the backend registers under.
const BackendName = "libsql"

func init() {
	storage.Register(BackendName, func(path string, logger *slog.Logger) storage.Adapter {
		return New(path, logger)
	})
}

// New returns an adapter backed by a local libSQL database file.
func New(path string, logger *slog.Logger) *storage.SQLite {
	return storage.NewSQLWithOpener(BackendName, path, Open, logger)
}

// Open opens a local libSQL database and prepares the record store schema.
func Open(ctx context.Context, path string) (*store.DB, error) {
	if err := store.CheckEnvironment(path); err != nil {
		return nil, err
	}

	conn, err := sql.Open("libsql", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, &store.EnvironmentError{Path: path, Reason: "cannot open libsql database", Err: err}
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, &store.EnvironmentError{Path: path, Reason: "cannot reach libsql database", Err: err}
	}
	conn.SetMaxOpenConns(1)

	// libSQL returns a row for journal_mode, so read it instead of Exec.
	var mode string
	if err := conn.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&mode); err != nil {
		_ = conn.Close()
		return nil, &store.EnvironmentError{Path: path, Reason: "cannot enable WAL", Err: err}
	}

	db := store.New(conn, path)
	if err := db.InitSchemaContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
