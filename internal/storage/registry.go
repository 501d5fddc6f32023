package storage

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Factory builds an adapter for a data file path.
type Factory func(path string, logger *slog.Logger) Adapter

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		"sqlite": func(path string, logger *slog.Logger) Adapter { return NewSQLite(path, logger) },
		"memory": func(string, *slog.Logger) Adapter { return NewMemory() },
	}
)

// Register makes a backend available by name. Backends that need cgo
// register themselves from an init function in their own package.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// New builds the named backend. The adapter is not initialized.
func New(name, path string, logger *slog.Logger) (Adapter, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown storage backend %q (available: %v)", name, Backends())
	}
	return f(path, logger), nil
}

// Backends lists the registered backend names.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
