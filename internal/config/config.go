// Package config loads the daysync configuration file.
//
// Values come from, in increasing precedence: built-in defaults, the YAML
// file, and DAYSYNC_ prefixed environment variables (DAYSYNC_LOG_LEVEL maps
// to log.level).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mschirtzinger/daysync/internal/reconcile"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "DAYSYNC"

// Config represents the full daysync configuration.
type Config struct {
	// DataDir holds the store, the device identity and the default inbox.
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
	Sync    SyncConfig    `yaml:"sync" mapstructure:"sync"`
	OAuth   OAuthConfig   `yaml:"oauth" mapstructure:"oauth"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	// Backend is sqlite, libsql or memory.
	Backend string `yaml:"backend" mapstructure:"backend"`
}

// SyncConfig configures imports.
type SyncConfig struct {
	DefaultStrategy string `yaml:"default_strategy" mapstructure:"default_strategy"`
	// InboxDir is watched by `daysync watch`; empty means <data_dir>/inbox.
	InboxDir string `yaml:"inbox_dir" mapstructure:"inbox_dir"`
}

// OAuthConfig configures the loopback authorization flow.
type OAuthConfig struct {
	ListenAddr string `yaml:"listen_addr" mapstructure:"listen_addr"`
	// Timeout is a Go duration string such as "5m".
	Timeout string `yaml:"timeout" mapstructure:"timeout"`
}

// LogConfig configures logging and file rotation.
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// Load reads the configuration at path. A missing file yields the defaults
// with environment overrides applied. An empty path means DefaultPath.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Default())

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	cfg.DataDir = ExpandHome(cfg.DataDir)
	cfg.Sync.InboxDir = ExpandHome(cfg.Sync.InboxDir)
	cfg.Log.File = ExpandHome(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("sync.default_strategy", d.Sync.DefaultStrategy)
	v.SetDefault("sync.inbox_dir", d.Sync.InboxDir)
	v.SetDefault("oauth.listen_addr", d.OAuth.ListenAddr)
	v.SetDefault("oauth.timeout", d.OAuth.Timeout)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
}

// Validate checks values that would otherwise fail deep inside a command.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Storage.Backend == "" {
		return fmt.Errorf("storage.backend is required")
	}
	if _, err := reconcile.ParseStrategy(c.Sync.DefaultStrategy); err != nil {
		return fmt.Errorf("sync.default_strategy: %w", err)
	}
	if _, err := c.OAuth.TimeoutDuration(); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log.level %q", c.Log.Level)
	}
	return nil
}

// TimeoutDuration parses Timeout.
func (o OAuthConfig) TimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(o.Timeout)
	if err != nil {
		return 0, fmt.Errorf("oauth.timeout: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("oauth.timeout must be positive, got %s", o.Timeout)
	}
	return d, nil
}

// StorePath is the database file of the record store.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "daysync.db")
}

// DevicePath is the device identity file.
func (c *Config) DevicePath() string {
	return filepath.Join(c.DataDir, "device.toml")
}

// Inbox returns the watched directory.
func (c *Config) Inbox() string {
	if c.Sync.InboxDir != "" {
		return c.Sync.InboxDir
	}
	return filepath.Join(c.DataDir, "inbox")
}

// DefaultPath returns ~/.config/daysync/config.yaml.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "daysync", "config.yaml")
}

// DefaultDataDir returns ~/.local/share/daysync.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "daysync")
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
