package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/daysync/internal/fsutil"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Storage: StorageConfig{Backend: "sqlite"},
		Sync:    SyncConfig{DefaultStrategy: "merge"},
		OAuth: OAuthConfig{
			ListenAddr: "127.0.0.1:6789",
			Timeout:    "5m",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

const header = `# daysync configuration
#
# storage.backend: sqlite (default), libsql (cgo builds) or memory
# sync.default_strategy: overwrite, merge or manual
# Every key can be overridden with DAYSYNC_<SECTION>_<KEY>, e.g. DAYSYNC_LOG_LEVEL=debug.

`

// Marshal renders cfg as commented YAML.
func Marshal(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(header)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteDefault writes the default configuration to path. An existing file
// is left alone unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config %s already exists", path)
		}
	}
	data, err := Marshal(Default())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return fsutil.WriteFileAtomic(path, data, 0o644)
}
