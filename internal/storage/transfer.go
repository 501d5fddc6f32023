package storage

import (
	"context"
	"fmt"
)

// Transfer copies every record and setting from src into dst. Both must
// be initialized. Records already in dst with the same id are replaced.
func Transfer(ctx context.Context, src, dst Adapter) (todos, settings int, err error) {
	records, err := src.GetTodos(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read records from %s: %w", src.Name(), err)
	}
	values, err := src.Settings(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read settings from %s: %w", src.Name(), err)
	}

	if len(records) > 0 {
		if err := dst.BulkSaveTodos(ctx, records); err != nil {
			return 0, 0, fmt.Errorf("failed to write records to %s: %w", dst.Name(), err)
		}
	}
	if len(values) > 0 {
		if err := dst.BulkSaveSettings(ctx, values); err != nil {
			return len(records), 0, fmt.Errorf("failed to write settings to %s: %w", dst.Name(), err)
		}
	}
	return len(records), len(values), nil
}

// SwitchTo initializes next, copies the active adapter's data into it,
// makes it active and closes the previous adapter. On any failure before
// the swap the active adapter is unchanged and next is closed.
func (m *Manager) SwitchTo(ctx context.Context, next Adapter) (todos, settings int, err error) {
	prev, err := m.current()
	if err != nil {
		return 0, 0, err
	}
	if err := next.Initialize(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to initialize %s adapter: %w", next.Name(), err)
	}
	if todos, settings, err = Transfer(ctx, prev, next); err != nil {
		_ = next.Close()
		return 0, 0, err
	}
	if _, err := m.Swap(ctx, next); err != nil {
		_ = next.Close()
		return 0, 0, err
	}
	if err := prev.Close(); err != nil {
		m.logger.Warn("failed to close previous adapter", "adapter", prev.Name(), "error", err)
	}
	return todos, settings, nil
}
