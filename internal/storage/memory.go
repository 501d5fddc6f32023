package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mschirtzinger/daysync/internal/schema"
)

// Memory is a non-durable adapter used for tests and dry runs.
type Memory struct {
	mu          sync.RWMutex
	initialized bool
	now         func() time.Time
	todos       map[string]memoryTodo
	settings    map[string]json.RawMessage
	seq         int
}

type memoryTodo struct {
	record   schema.TaskRecord
	modified time.Time
	seq      int
}

// NewMemory returns an empty in-memory adapter.
func NewMemory() *Memory {
	return &Memory{
		now:      time.Now,
		todos:    map[string]memoryTodo{},
		settings: map[string]json.RawMessage{},
	}
}

// SetClock replaces the clock used for modification markers.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initialized = true
	return nil
}

func (m *Memory) check() error {
	if !m.initialized {
		return ErrNotInitialized
	}
	return nil
}

func (m *Memory) GetTodos(ctx context.Context) ([]schema.TaskRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}

	entries := make([]memoryTodo, 0, len(m.todos))
	for _, t := range m.todos {
		entries = append(entries, t)
	}
	// Same ordering as the SQL store: sort key, raw createdAt, insertion.
	sort.Slice(entries, func(i, j int) bool {
		ki, kj := schema.SortKey(entries[i].record.CreatedAt), schema.SortKey(entries[j].record.CreatedAt)
		if ki != kj {
			return ki > kj
		}
		if entries[i].record.CreatedAt != entries[j].record.CreatedAt {
			return entries[i].record.CreatedAt > entries[j].record.CreatedAt
		}
		return entries[i].seq > entries[j].seq
	})

	out := make([]schema.TaskRecord, len(entries))
	for i, e := range entries {
		out[i] = e.record
	}
	return out, nil
}

func (m *Memory) SaveTodo(ctx context.Context, r schema.TaskRecord) error {
	if err := r.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	m.put(r, true)
	return nil
}

func (m *Memory) put(r schema.TaskRecord, touch bool) {
	existing, ok := m.todos[r.ID]
	if !ok {
		m.seq++
		m.todos[r.ID] = memoryTodo{record: r, modified: m.now().UTC(), seq: m.seq}
		return
	}
	existing.record = r
	if touch {
		existing.modified = m.now().UTC()
	}
	m.todos[r.ID] = existing
}

func (m *Memory) DeleteTodo(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	delete(m.todos, id)
	return nil
}

func (m *Memory) BulkSaveTodos(ctx context.Context, records []schema.TaskRecord) error {
	if err := schema.ValidateAll(records); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	for _, r := range records {
		m.put(r, false)
	}
	return nil
}

func (m *Memory) GetSetting(ctx context.Context, key string) (json.RawMessage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, false, err
	}
	v, ok := m.settings[key]
	return bytes.Clone(v), ok, nil
}

func (m *Memory) SaveSetting(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode setting %s: %w", key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	m.settings[key] = raw
	return nil
}

func (m *Memory) DeleteSetting(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	delete(m.settings, key)
	return nil
}

func (m *Memory) Settings(ctx context.Context) (map[string]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(m.settings))
	for k, v := range m.settings {
		out[k] = bytes.Clone(v)
	}
	return out, nil
}

func (m *Memory) BulkSaveSettings(ctx context.Context, values map[string]json.RawMessage) error {
	encoded := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode setting %s: %w", k, err)
		}
		encoded[k] = raw
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	for k, v := range encoded {
		m.settings[k] = v
	}
	return nil
}

func (m *Memory) ModifiedAt(ctx context.Context, id string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(); err != nil {
		return time.Time{}, false, err
	}
	t, ok := m.todos[id]
	if !ok {
		return time.Time{}, false, nil
	}
	return t.modified, true, nil
}

func (m *Memory) Close() error { return nil }
