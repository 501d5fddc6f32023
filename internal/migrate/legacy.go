package migrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/tidwall/gjson"

	"github.com/mschirtzinger/daysync/internal/fsutil"
)

// Legacy storage keys.
const (
	KeyNotesHistory    = "notesHistory"
	KeyTodayNote       = "todayNote"
	KeyTodayNoteDate   = "todayNoteDate"
	KeyMotivationDate  = "motivationDate"
	KeyTodayMotivation = "todayMotivation"
)

// LegacyStore is the key/value storage used before the record store.
// Values are strings, as the browser's local storage holds them.
type LegacyStore interface {
	Get(key string) (string, bool, error)
	Remove(keys ...string) error
}

// FileStore is a LegacyStore backed by a JSON object file, typically a dump
// of the browser's local storage. Values may be strings (possibly holding
// encoded JSON) or inline JSON values.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore for path. A missing file behaves as an
// empty store.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) read() ([]byte, error) {
	// #nosec G304 - path from CLI/config
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy storage %s: %w", f.path, err)
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return nil, fmt.Errorf("legacy storage %s is not a JSON object", f.path)
	}
	return data, nil
}

// Get returns the value stored under key.
func (f *FileStore) Get(key string) (string, bool, error) {
	data, err := f.read()
	if err != nil || data == nil {
		return "", false, err
	}
	v := gjson.GetBytes(data, gjson.Escape(key))
	switch {
	case !v.Exists() || v.Type == gjson.Null:
		return "", false, nil
	case v.Type == gjson.String:
		return v.Str, true, nil
	default:
		return v.Raw, true, nil
	}
}

// Remove deletes keys and rewrites the file atomically.
func (f *FileStore) Remove(keys ...string) error {
	data, err := f.read()
	if err != nil || data == nil {
		return err
	}
	var values map[string]json.RawMessage
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("failed to parse legacy storage %s: %w", f.path, err)
	}
	for _, k := range keys {
		delete(values, k)
	}
	out, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode legacy storage: %w", err)
	}
	return fsutil.WriteFileAtomic(f.path, out, 0600)
}
