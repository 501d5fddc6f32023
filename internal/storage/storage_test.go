package storage

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/daysync/internal/schema"
)

const (
	idA = "11111111-1111-4111-8111-111111111111"
	idB = "22222222-2222-4222-8222-222222222222"
)

func rec(id, createdAt, content string) schema.TaskRecord {
	return schema.TaskRecord{ID: id, Date: createdAt[:10], Title: "t", Content: content, CreatedAt: createdAt}
}

// adapters returns an initialized instance of every built-in backend.
func adapters(t *testing.T) map[string]Adapter {
	t.Helper()
	ctx := context.Background()

	sqlite := NewSQLite(filepath.Join(t.TempDir(), "daysync.db"), nil)
	require.NoError(t, sqlite.Initialize(ctx))
	t.Cleanup(func() { _ = sqlite.Close() })

	mem := NewMemory()
	require.NoError(t, mem.Initialize(ctx))

	return map[string]Adapter{"sqlite": sqlite, "memory": mem}
}

func TestAdapters_Contract(t *testing.T) {
	ctx := context.Background()
	for name, a := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			older := rec(idA, "2026-10-15 09:00:00", "a")
			newer := rec(idB, "2026-10-16 09:00:00", "b")

			require.NoError(t, a.SaveTodo(ctx, older))
			require.NoError(t, a.BulkSaveTodos(ctx, []schema.TaskRecord{newer}))

			todos, err := a.GetTodos(ctx)
			require.NoError(t, err)
			assert.Equal(t, []schema.TaskRecord{newer, older}, todos)

			err = a.BulkSaveTodos(ctx, []schema.TaskRecord{rec(idA, "2026-10-15 09:00:00", "changed"), {ID: "bad"}})
			assert.True(t, schema.IsValidationError(err))
			todos, _ = a.GetTodos(ctx)
			assert.Equal(t, "a", todos[1].Content, "rejected batch must not apply")

			require.NoError(t, a.SaveSetting(ctx, "peer", "device-1"))
			require.NoError(t, a.BulkSaveSettings(ctx, map[string]json.RawMessage{"n": json.RawMessage(`2`)}))
			settings, err := a.Settings(ctx)
			require.NoError(t, err)
			assert.JSONEq(t, `"device-1"`, string(settings["peer"]))
			assert.JSONEq(t, `2`, string(settings["n"]))

			_, ok, err := a.ModifiedAt(ctx, idA)
			require.NoError(t, err)
			assert.True(t, ok)

			require.NoError(t, a.DeleteTodo(ctx, idA))
			require.NoError(t, a.DeleteSetting(ctx, "peer"))
			_, ok, err = a.GetSetting(ctx, "peer")
			require.NoError(t, err)
			assert.False(t, ok)
			_, ok, _ = a.ModifiedAt(ctx, idA)
			assert.False(t, ok)
		})
	}
}

func TestAdapters_NotInitialized(t *testing.T) {
	ctx := context.Background()
	for _, a := range []Adapter{NewSQLite(filepath.Join(t.TempDir(), "x.db"), nil), NewMemory()} {
		_, err := a.GetTodos(ctx)
		assert.ErrorIs(t, err, ErrNotInitialized, a.Name())
	}
}

func TestGetSettingAs(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Initialize(ctx))

	type cfg struct {
		Bucket string `json:"bucketName"`
	}
	require.NoError(t, m.SaveSetting(ctx, "s3_config", cfg{Bucket: "b"}))

	got, ok, err := GetSettingAs[cfg](ctx, m, "s3_config")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b", got.Bucket)

	_, ok, err = GetSettingAs[cfg](ctx, m, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

type failingAdapter struct {
	*Memory
}

func (f failingAdapter) Name() string { return "failing" }

func (f failingAdapter) Initialize(context.Context) error {
	return errors.New("disk on fire")
}

type countingAdapter struct {
	*Memory
	inits int
}

func (c *countingAdapter) Initialize(ctx context.Context) error {
	c.inits++
	return c.Memory.Initialize(ctx)
}

func TestManager_Swap(t *testing.T) {
	ctx := context.Background()
	first := NewMemory()
	mgr := NewManager(first, nil)
	require.NoError(t, mgr.Initialize(ctx))
	require.NoError(t, mgr.SaveTodo(ctx, rec(idA, "2026-10-15 09:00:00", "a")))

	next := &countingAdapter{Memory: NewMemory()}
	prev, err := mgr.Swap(ctx, next)
	require.NoError(t, err)
	assert.Same(t, first, prev)
	assert.Equal(t, 1, next.inits, "Swap must initialize before activating")
	assert.Same(t, next, mgr.Active())

	todos, err := mgr.GetTodos(ctx)
	require.NoError(t, err)
	assert.Empty(t, todos, "reads go to the new adapter")

	// Writes issued through the old handle still land in the old backend.
	require.NoError(t, prev.SaveTodo(ctx, rec(idB, "2026-10-16 09:00:00", "stale")))
	todos, _ = mgr.GetTodos(ctx)
	assert.Empty(t, todos)
}

func TestManager_SwapFailureKeepsActive(t *testing.T) {
	ctx := context.Background()
	first := NewMemory()
	mgr := NewManager(first, nil)
	require.NoError(t, mgr.Initialize(ctx))

	_, err := mgr.Swap(ctx, failingAdapter{Memory: NewMemory()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
	assert.Same(t, first, mgr.Active())

	_, err = mgr.Swap(ctx, nil)
	assert.Error(t, err)
}

func TestManager_Empty(t *testing.T) {
	mgr := NewManager(nil, nil)
	_, err := mgr.GetTodos(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.NoError(t, mgr.Close())
}

func TestRegistry(t *testing.T) {
	a, err := New("memory", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "memory", a.Name())

	a, err = New("sqlite", filepath.Join(t.TempDir(), "r.db"), nil)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", a.Name())

	_, err = New("nope", "", nil)
	assert.Error(t, err)
	assert.Contains(t, Backends(), "sqlite")
}

func TestMemory_ModificationMarker(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Initialize(ctx))
	clock := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	m.SetClock(func() time.Time { return clock })

	require.NoError(t, m.SaveTodo(ctx, rec(idA, "2026-10-16 09:00:00", "a")))
	clock = clock.Add(time.Hour)
	require.NoError(t, m.BulkSaveTodos(ctx, []schema.TaskRecord{rec(idA, "2026-10-16 09:00:00", "b")}))

	mod, ok, err := m.ModifiedAt(ctx, idA)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mod.Equal(clock.Add(-time.Hour)))
}

func TestMemory_SettingsAreCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Initialize(ctx))
	require.NoError(t, m.SaveSetting(ctx, "theme", "dark"))

	v, ok, err := m.GetSetting(ctx, "theme")
	require.NoError(t, err)
	require.True(t, ok)
	v[1] = 'X'

	all, err := m.Settings(ctx)
	require.NoError(t, err)
	all["theme"][1] = 'Y'

	v, _, err = m.GetSetting(ctx, "theme")
	require.NoError(t, err)
	assert.JSONEq(t, `"dark"`, string(v))
}

func TestManager_SwitchTo(t *testing.T) {
	ctx := context.Background()
	first := NewMemory()
	mgr := NewManager(first, nil)
	require.NoError(t, mgr.Initialize(ctx))
	require.NoError(t, mgr.SaveTodo(ctx, rec(idA, "2026-10-15 09:00:00", "a")))
	require.NoError(t, mgr.SaveTodo(ctx, rec(idB, "2026-10-16 09:00:00", "b")))
	require.NoError(t, mgr.SaveSetting(ctx, KeySyncedWith, "device-x"))

	next := NewSQLite(filepath.Join(t.TempDir(), "next.db"), nil)
	t.Cleanup(func() { _ = next.Close() })

	todos, settings, err := mgr.SwitchTo(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, 2, todos)
	assert.Equal(t, 1, settings)
	assert.Same(t, Adapter(next), mgr.Active())

	got, err := mgr.GetTodos(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	synced, ok, err := GetSettingAs[string](ctx, mgr, KeySyncedWith)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "device-x", synced)
}

func TestManager_SwitchToFailureKeepsActive(t *testing.T) {
	ctx := context.Background()
	first := NewMemory()
	mgr := NewManager(first, nil)
	require.NoError(t, mgr.Initialize(ctx))
	require.NoError(t, mgr.SaveTodo(ctx, rec(idA, "2026-10-15 09:00:00", "a")))

	_, _, err := mgr.SwitchTo(ctx, failingAdapter{Memory: NewMemory()})
	require.Error(t, err)
	assert.Same(t, first, mgr.Active())

	got, err := mgr.GetTodos(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
