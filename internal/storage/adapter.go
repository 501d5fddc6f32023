// Package storage defines the adapter interface through which the rest of
// daysync reaches the record store, and the Manager that holds the active
// adapter.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mschirtzinger/daysync/internal/schema"
)

// ErrNotInitialized is returned when an adapter is used before Initialize.
var ErrNotInitialized = errors.New("storage adapter not initialized")

// Adapter is the capability set of a storage backend.
// Implementations must validate records before writing them, and batch
// writes must be all-or-nothing.
type Adapter interface {
	// Name identifies the backend (e.g. "sqlite", "memory").
	Name() string

	// Initialize prepares the backend (open files, create schema).
	// It is called before the adapter becomes active and must be idempotent.
	Initialize(ctx context.Context) error

	// GetTodos returns every record, newest first.
	GetTodos(ctx context.Context) ([]schema.TaskRecord, error)

	// SaveTodo upserts one record and stamps its modification marker.
	SaveTodo(ctx context.Context, r schema.TaskRecord) error

	// DeleteTodo removes a record. Missing records are not an error.
	DeleteTodo(ctx context.Context, id string) error

	// BulkSaveTodos validates and upserts a batch atomically.
	BulkSaveTodos(ctx context.Context, records []schema.TaskRecord) error

	// GetSetting returns the JSON value for key and whether it exists.
	GetSetting(ctx context.Context, key string) (json.RawMessage, bool, error)

	// SaveSetting stores value (JSON encoded) under key.
	SaveSetting(ctx context.Context, key string, value any) error

	// DeleteSetting removes key.
	DeleteSetting(ctx context.Context, key string) error

	// Settings returns every setting.
	Settings(ctx context.Context) (map[string]json.RawMessage, error)

	// BulkSaveSettings writes a batch of settings atomically.
	BulkSaveSettings(ctx context.Context, values map[string]json.RawMessage) error

	// ModifiedAt returns the local modification marker of a record.
	ModifiedAt(ctx context.Context, id string) (time.Time, bool, error)

	// Close releases the backend's resources.
	Close() error
}

// GetSettingAs decodes the setting stored under key into a T.
// The boolean is false when the key is absent.
func GetSettingAs[T any](ctx context.Context, a Adapter, key string) (T, bool, error) {
	var v T
	raw, ok, err := a.GetSetting(ctx, key)
	if err != nil || !ok {
		return v, ok, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("failed to decode setting %s: %w", key, err)
	}
	return v, true, nil
}
