// Package bundle converts the full exportable state of a daysync store to
// and from a single JSON document.
//
// A bundle has three top-level keys:
//
//	{
//	  "metadata": {"deviceId": "...", "deviceName": "...", "lastSyncAt": "...", "formatVersion": 1},
//	  "todos": [ ... ],
//	  "settings": { ... }
//	}
//
// Decode checks this shape before anything else looks at the data, so a
// malformed bundle is rejected before it can reach the store.
package bundle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mschirtzinger/daysync/internal/device"
	"github.com/mschirtzinger/daysync/internal/fsutil"
	"github.com/mschirtzinger/daysync/internal/schema"
)

// FormatVersion is the newest bundle format this build understands.
const FormatVersion = 1

// AppName prefixes default bundle filenames.
const AppName = "motivation-adhd"

// TimestampLayout is the layout of lastSyncAt (UTC, millisecond precision).
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Metadata describes where and when a bundle was produced.
type Metadata struct {
	DeviceID   string `json:"deviceId"`
	DeviceName string `json:"deviceName"`
	LastSyncAt string `json:"lastSyncAt"`
	// Version is written as formatVersion. Bundles that carry the older
	// "version" key still decode.
	Version int `json:"formatVersion"`
}

// SyncTime parses LastSyncAt.
func (m Metadata) SyncTime() (time.Time, error) {
	return ParseTimestamp(m.LastSyncAt)
}

// Bundle is the portable document.
type Bundle struct {
	Metadata Metadata                   `json:"metadata"`
	Todos    []schema.TaskRecord        `json:"todos"`
	Settings map[string]json.RawMessage `json:"settings"`
}

// Source is the read side of a storage adapter.
type Source interface {
	GetTodos(ctx context.Context) ([]schema.TaskRecord, error)
	Settings(ctx context.Context) (map[string]json.RawMessage, error)
}

// Export reads every record and setting from src and stamps the bundle
// with the device identity and now.
func Export(ctx context.Context, src Source, id device.Identity, now time.Time) (*Bundle, error) {
	todos, err := src.GetTodos(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read todos: %w", err)
	}
	settings, err := src.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	if todos == nil {
		todos = []schema.TaskRecord{}
	}
	if settings == nil {
		settings = map[string]json.RawMessage{}
	}

	return &Bundle{
		Metadata: Metadata{
			DeviceID:   id.DeviceID,
			DeviceName: id.DeviceName,
			LastSyncAt: FormatTimestamp(now),
			Version:    FormatVersion,
		},
		Todos:    todos,
		Settings: settings,
	}, nil
}

// Encode renders b as indented JSON. Empty todos and settings are written
// as [] and {}.
func Encode(b *Bundle) ([]byte, error) {
	out := *b
	if out.Todos == nil {
		out.Todos = []schema.TaskRecord{}
	}
	if out.Settings == nil {
		out.Settings = map[string]json.RawMessage{}
	}
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode bundle: %w", err)
	}
	return data, nil
}

// DefaultFilename is the download name for a bundle produced at now.
func DefaultFilename(now time.Time) string {
	return fmt.Sprintf("%s-backup-%s.json", AppName, now.UTC().Format("2006-01-02"))
}

// WriteFile encodes b into dir under DefaultFilename and returns the path.
func WriteFile(dir string, b *Bundle, now time.Time) (string, error) {
	data, err := Encode(b)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, DefaultFilename(now))
	if err := fsutil.WriteFileAtomic(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// ReadFile reads and decodes the bundle at path.
func ReadFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle %s: %w", path, err)
	}
	b, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return b, nil
}

// FormatTimestamp renders t as a lastSyncAt value.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a lastSyncAt value. Any RFC 3339 form is accepted.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}
