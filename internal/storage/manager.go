package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mschirtzinger/daysync/internal/schema"
)

// Manager holds the active adapter and forwards every call to it.
// It implements Adapter itself, so consumers depend on the Manager without
// knowing which backend is active.
//
// A Manager is created explicitly and passed to the components that need
// storage; there is no package-level instance.
type Manager struct {
	mu     sync.RWMutex
	active Adapter
	logger *slog.Logger
}

// NewManager returns a Manager with initial as the active adapter.
// The caller must call Initialize before use.
func NewManager(initial Adapter, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{active: initial, logger: logger}
}

// Active returns the adapter currently receiving calls.
func (m *Manager) Active() Adapter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Swap initializes next and then makes it the active adapter, returning
// the previous one. If next fails to initialize the active adapter is
// unchanged.
//
// Calls already dispatched to the previous adapter are not cancelled and
// complete against it. A write racing with Swap can therefore land in the
// old backend after the switch and be invisible through the new one.
// Callers that care must quiesce writes before swapping. The previous
// adapter is not closed; the caller closes it once its work has drained.
func (m *Manager) Swap(ctx context.Context, next Adapter) (Adapter, error) {
	if next == nil {
		return nil, errors.New("cannot swap to a nil adapter")
	}
	if err := next.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize %s adapter: %w", next.Name(), err)
	}

	m.mu.Lock()
	prev := m.active
	m.active = next
	m.mu.Unlock()

	prevName := ""
	if prev != nil {
		prevName = prev.Name()
	}
	m.logger.Info("storage adapter swapped", "from", prevName, "to", next.Name())
	return prev, nil
}

func (m *Manager) current() (Adapter, error) {
	a := m.Active()
	if a == nil {
		return nil, ErrNotInitialized
	}
	return a, nil
}

func (m *Manager) Name() string {
	a, err := m.current()
	if err != nil {
		return ""
	}
	return a.Name()
}

func (m *Manager) Initialize(ctx context.Context) error {
	a, err := m.current()
	if err != nil {
		return err
	}
	return a.Initialize(ctx)
}

func (m *Manager) GetTodos(ctx context.Context) ([]schema.TaskRecord, error) {
	a, err := m.current()
	if err != nil {
		return nil, err
	}
	return a.GetTodos(ctx)
}

func (m *Manager) SaveTodo(ctx context.Context, r schema.TaskRecord) error {
	a, err := m.current()
	if err != nil {
		return err
	}
	return a.SaveTodo(ctx, r)
}

func (m *Manager) DeleteTodo(ctx context.Context, id string) error {
	a, err := m.current()
	if err != nil {
		return err
	}
	return a.DeleteTodo(ctx, id)
}

func (m *Manager) BulkSaveTodos(ctx context.Context, records []schema.TaskRecord) error {
	a, err := m.current()
	if err != nil {
		return err
	}
	return a.BulkSaveTodos(ctx, records)
}

func (m *Manager) GetSetting(ctx context.Context, key string) (json.RawMessage, bool, error) {
	a, err := m.current()
	if err != nil {
		return nil, false, err
	}
	return a.GetSetting(ctx, key)
}

func (m *Manager) SaveSetting(ctx context.Context, key string, value any) error {
	a, err := m.current()
	if err != nil {
		return err
	}
	return a.SaveSetting(ctx, key, value)
}

func (m *Manager) DeleteSetting(ctx context.Context, key string) error {
	a, err := m.current()
	if err != nil {
		return err
	}
	return a.DeleteSetting(ctx, key)
}

func (m *Manager) Settings(ctx context.Context) (map[string]json.RawMessage, error) {
	a, err := m.current()
	if err != nil {
		return nil, err
	}
	return a.Settings(ctx)
}

func (m *Manager) BulkSaveSettings(ctx context.Context, values map[string]json.RawMessage) error {
	a, err := m.current()
	if err != nil {
		return err
	}
	return a.BulkSaveSettings(ctx, values)
}

func (m *Manager) ModifiedAt(ctx context.Context, id string) (time.Time, bool, error) {
	a, err := m.current()
	if err != nil {
		return time.Time{}, false, err
	}
	return a.ModifiedAt(ctx, id)
}

// Close closes the active adapter.
func (m *Manager) Close() error {
	a := m.Active()
	if a == nil {
		return nil
	}
	return a.Close()
}
