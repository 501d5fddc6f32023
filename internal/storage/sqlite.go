package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/mschirtzinger/daysync/internal/schema"
	"github.com/mschirtzinger/daysync/internal/store"
)

// OpenFunc opens a record store at path.
type OpenFunc func(ctx context.Context, path string) (*store.DB, error)

// SQLite is the default adapter, backed by the embedded record store.
type SQLite struct {
	name   string
	path   string
	open   OpenFunc
	logger *slog.Logger

	mu sync.Mutex
	db *store.DB
}

// NewSQLite returns an adapter that opens the record store at path on
// Initialize.
func NewSQLite(path string, logger *slog.Logger) *SQLite {
	return NewSQLWithOpener("sqlite", path, store.OpenContext, logger)
}

// NewSQLWithOpener returns a store-backed adapter that uses open to reach
// the database. Alternative SQL drivers use this to share the store layer.
func NewSQLWithOpener(name, path string, open OpenFunc, logger *slog.Logger) *SQLite {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLite{name: name, path: path, open: open, logger: logger}
}

// FromDB wraps an already opened store.
func FromDB(db *store.DB) *SQLite {
	return &SQLite{name: "sqlite", path: db.Path(), db: db, logger: slog.New(slog.DiscardHandler)}
}

func (s *SQLite) Name() string { return s.name }

// DB returns the underlying store, or nil before Initialize.
func (s *SQLite) DB() *store.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}

func (s *SQLite) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db.InitSchemaContext(ctx)
	}
	db, err := s.open(ctx, s.path)
	if err != nil {
		return err
	}
	db.SetLogger(s.logger)
	s.db = db
	s.logger.Debug("storage adapter initialized", "backend", s.name, "path", s.path)
	return nil
}

func (s *SQLite) conn() (*store.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

func (s *SQLite) GetTodos(ctx context.Context) ([]schema.TaskRecord, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	return db.All(ctx)
}

func (s *SQLite) SaveTodo(ctx context.Context, r schema.TaskRecord) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	return db.SaveContext(ctx, r)
}

func (s *SQLite) DeleteTodo(ctx context.Context, id string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	return db.DeleteContext(ctx, id)
}

func (s *SQLite) BulkSaveTodos(ctx context.Context, records []schema.TaskRecord) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	return db.BulkSaveContext(ctx, records)
}

func (s *SQLite) GetSetting(ctx context.Context, key string) (json.RawMessage, bool, error) {
	db, err := s.conn()
	if err != nil {
		return nil, false, err
	}
	return db.GetSetting(ctx, key)
}

func (s *SQLite) SaveSetting(ctx context.Context, key string, value any) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	return db.SetSetting(ctx, key, value)
}

func (s *SQLite) DeleteSetting(ctx context.Context, key string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	return db.DeleteSetting(ctx, key)
}

func (s *SQLite) Settings(ctx context.Context) (map[string]json.RawMessage, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	return db.Settings(ctx)
}

func (s *SQLite) BulkSaveSettings(ctx context.Context, values map[string]json.RawMessage) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	return db.BulkSaveSettings(ctx, values)
}

func (s *SQLite) ModifiedAt(ctx context.Context, id string) (time.Time, bool, error) {
	db, err := s.conn()
	if err != nil {
		return time.Time{}, false, err
	}
	return db.ModifiedAt(ctx, id)
}

func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
