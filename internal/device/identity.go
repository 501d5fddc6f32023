// Package device manages the stable identity of this daysync instance.
//
// The identity lives in its own TOML file beside the data directory so
// clearing or replacing the record store does not change it. It is only
// used as provenance in exported bundles.
package device

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"github.com/mschirtzinger/daysync/internal/fsutil"
	"github.com/mschirtzinger/daysync/internal/schema"
)

// Identity is the per-device id and label.
type Identity struct {
	DeviceID   string `toml:"device_id" json:"deviceId"`
	DeviceName string `toml:"device_name" json:"deviceName"`
}

// Validate checks that the identity is usable.
func (i Identity) Validate() error {
	if !schema.IsUUID(i.DeviceID) {
		return fmt.Errorf("device_id must be a UUID (got %q)", i.DeviceID)
	}
	if i.DeviceName == "" {
		return fmt.Errorf("device_name is required")
	}
	return nil
}

// Generate creates a new identity named after the platform and date.
func Generate(now time.Time) Identity {
	return Identity{
		DeviceID:   uuid.NewString(),
		DeviceName: fmt.Sprintf("%s - %s", Platform(runtime.GOOS), now.Format("2006-01-02")),
	}
}

// Platform maps a GOOS value to a display name.
func Platform(goos string) string {
	switch goos {
	case "windows":
		return "Windows"
	case "darwin":
		return "Mac"
	case "linux":
		return "Linux"
	case "android":
		return "Android"
	case "ios":
		return "iOS"
	default:
		return "Unknown"
	}
}

// Load reads the identity file at path.
func Load(path string) (Identity, error) {
	var id Identity
	if _, err := toml.DecodeFile(path, &id); err != nil {
		return Identity{}, fmt.Errorf("failed to read device identity %s: %w", path, err)
	}
	if err := id.Validate(); err != nil {
		return Identity{}, fmt.Errorf("invalid device identity %s: %w", path, err)
	}
	return id, nil
}

// LoadOrCreate returns the identity stored at path, creating it on first
// use. An existing file is never rewritten.
func LoadOrCreate(path string, now time.Time) (Identity, bool, error) {
	id, err := Load(path)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return Identity{}, false, err
	}

	id = Generate(now)
	var buf bytes.Buffer
	buf.WriteString("# daysync device identity. Do not copy between devices.\n")
	if err := toml.NewEncoder(&buf).Encode(id); err != nil {
		return Identity{}, false, fmt.Errorf("failed to encode device identity: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, buf.Bytes(), 0600); err != nil {
		return Identity{}, false, fmt.Errorf("failed to write device identity: %w", err)
	}
	return id, true, nil
}

// Store caches the identity for the life of the process.
type Store struct {
	path string
	now  func() time.Time

	mu     sync.Mutex
	id     Identity
	loaded bool
}

// NewStore returns a Store for the identity file at path.
func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Identity loads or creates the identity on first success and returns the
// cached value afterwards. Failures are not cached.
func (s *Store) Identity() (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.id, nil
	}
	id, _, err := LoadOrCreate(s.path, s.now())
	if err != nil {
		return Identity{}, err
	}
	s.id, s.loaded = id, true
	return id, nil
}

// Path returns the identity file location.
func (s *Store) Path() string { return s.path }
