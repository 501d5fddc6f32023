package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mschirtzinger/daysync/internal/bundle"
	"github.com/mschirtzinger/daysync/internal/device"
	"github.com/mschirtzinger/daysync/internal/schema"
	"github.com/mschirtzinger/daysync/internal/storage"
	"github.com/mschirtzinger/daysync/internal/store"
)

const (
	idA = "11111111-1111-4111-8111-111111111111"
	idB = "22222222-2222-4222-8222-222222222222"
	idC = "33333333-3333-4333-8333-333333333333"
)

var (
	t0   = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	peer = device.Identity{DeviceID: "aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa", DeviceName: "Mac - 2026-10-01"}
)

func rec(id, content string) schema.TaskRecord {
	return schema.TaskRecord{
		ID:        id,
		Date:      "2026-10-16 (Fri)",
		Title:     "Daily task - 2026-10-16 (Fri)",
		Content:   content,
		CreatedAt: "2026-10-16 09:00:00",
	}
}

func newMemory(t *testing.T) *storage.Memory {
	t.Helper()
	m := storage.NewMemory()
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	m.SetClock(func() time.Time { return t0 })
	return m
}

func newSQLite(t *testing.T) *storage.SQLite {
	t.Helper()
	a := storage.NewSQLite(filepath.Join(t.TempDir(), "daysync.db"), nil)
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func newBundle(syncAt time.Time, todos ...schema.TaskRecord) *bundle.Bundle {
	return &bundle.Bundle{
		Metadata: bundle.Metadata{
			DeviceID:   peer.DeviceID,
			DeviceName: peer.DeviceName,
			LastSyncAt: bundle.FormatTimestamp(syncAt),
			Version:    bundle.FormatVersion,
		},
		Todos:    todos,
		Settings: map[string]json.RawMessage{},
	}
}

func getSetting(t *testing.T, a storage.Adapter, key string) (string, bool) {
	t.Helper()
	v, ok, err := storage.GetSettingAs[string](context.Background(), a, key)
	if err != nil {
		t.Fatalf("GetSettingAs(%s) failed: %v", key, err)
	}
	return v, ok
}

func TestApply_OverwriteRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newSQLite(t)
	todos := []schema.TaskRecord{rec(idA, "a"), rec(idB, "b")}
	todos[1].CreatedAt = "2026-10-16 10:00:00"
	if err := src.BulkSaveTodos(ctx, todos); err != nil {
		t.Fatal(err)
	}
	if err := src.SaveSetting(ctx, storage.KeyMotivationDate, "2026-10-16"); err != nil {
		t.Fatal(err)
	}
	if err := src.SaveSetting(ctx, "theme", map[string]any{"dark": true}); err != nil {
		t.Fatal(err)
	}

	b, err := bundle.Export(ctx, src, peer, t0)
	if err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	data, err := bundle.Encode(b)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := bundle.Decode(data)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}

	dst := newSQLite(t)
	res, err := New(dst, nil).Apply(ctx, decoded, Overwrite)
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	if res.Added != 2 || res.Updated != 0 || !res.BookkeepingUpdated {
		t.Errorf("Result = %+v", res)
	}

	want, _ := src.GetTodos(ctx)
	got, _ := dst.GetTodos(ctx)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("todos mismatch (-want +got):\n%s", diff)
	}

	wantSettings, _ := src.Settings(ctx)
	gotSettings, _ := dst.Settings(ctx)
	// Bookkeeping keys are added by the apply itself.
	delete(gotSettings, storage.KeyLastSyncAt)
	delete(gotSettings, storage.KeySyncedWith)
	if diff := cmp.Diff(stringify(wantSettings), stringify(gotSettings)); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
}

func stringify(m map[string]json.RawMessage) map[string]string {
	out := map[string]string{}
	for k, v := range m {
		out[k] = string(v)
	}
	return out
}

func TestApply_OverwriteIsAdditive(t *testing.T) {
	ctx := context.Background()
	local := newMemory(t)
	if err := local.BulkSaveTodos(ctx, []schema.TaskRecord{rec(idA, "local a"), rec(idC, "local only")}); err != nil {
		t.Fatal(err)
	}
	if err := local.SaveSetting(ctx, storage.KeyLastSyncAt, bundle.FormatTimestamp(t0.Add(time.Hour))); err != nil {
		t.Fatal(err)
	}
	if err := local.SaveSetting(ctx, "theme", "light"); err != nil {
		t.Fatal(err)
	}

	b := newBundle(t0, rec(idA, "remote a"), rec(idB, "remote b"))
	b.Settings["theme"] = json.RawMessage(`"dark"`)

	res, err := New(local, nil).Apply(ctx, b, Overwrite)
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	if res.Added != 1 || res.Updated != 1 || res.SettingsWritten != 1 {
		t.Errorf("Result = %+v", res)
	}

	todos, _ := local.GetTodos(ctx)
	contents := map[string]string{}
	for _, r := range todos {
		contents[r.ID] = r.Content
	}
	want := map[string]string{idA: "remote a", idB: "remote b", idC: "local only"}
	if diff := cmp.Diff(want, contents); diff != "" {
		t.Errorf("contents mismatch (-want +got):\n%s", diff)
	}

	if v, _ := getSetting(t, local, "theme"); v != "dark" {
		t.Errorf("theme = %q, want dark", v)
	}
	// Overwrite updates bookkeeping even when the bundle is older.
	if v, _ := getSetting(t, local, storage.KeyLastSyncAt); v != b.Metadata.LastSyncAt {
		t.Errorf("lastSyncAt = %q, want %q", v, b.Metadata.LastSyncAt)
	}
	if v, _ := getSetting(t, local, storage.KeySyncedWith); v != peer.DeviceID {
		t.Errorf("syncedWith = %q", v)
	}
}

func TestApply_MergeNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	local := newMemory(t)
	if err := local.SaveTodo(ctx, rec(idA, "x")); err != nil {
		t.Fatal(err)
	}

	remoteB := rec(idB, "brand new")
	b := newBundle(t0.Add(time.Hour), rec(idA, "y"), remoteB)
	b.Settings["theme"] = json.RawMessage(`"dark"`)

	res, err := New(local, nil).Apply(ctx, b, Merge)
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	if res.Added != 1 || res.Skipped != 1 {
		t.Errorf("Result = %+v", res)
	}

	todos, _ := local.GetTodos(ctx)
	byID := map[string]schema.TaskRecord{}
	for _, r := range todos {
		byID[r.ID] = r
	}
	if byID[idA].Content != "x" {
		t.Errorf("merge overwrote local record: content = %q", byID[idA].Content)
	}
	if diff := cmp.Diff(remoteB, byID[idB]); diff != "" {
		t.Errorf("merged record mismatch (-want +got):\n%s", diff)
	}
	if _, ok := getSetting(t, local, "theme"); ok {
		t.Error("merge wrote bundle settings")
	}
}

func TestApply_MergeBookkeeping(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		localSync  string
		bundleSync time.Time
		wantUpdate bool
	}{
		{"no local value", "", t0, true},
		{"bundle newer", bundle.FormatTimestamp(t0), t0.Add(time.Millisecond), true},
		{"bundle equal", bundle.FormatTimestamp(t0), t0, false},
		{"bundle older", bundle.FormatTimestamp(t0), t0.Add(-time.Hour), false},
		{"local unparsable", "garbage", t0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := newMemory(t)
			if tt.localSync != "" {
				if err := local.SaveSetting(ctx, storage.KeyLastSyncAt, tt.localSync); err != nil {
					t.Fatal(err)
				}
			}

			res, err := New(local, nil).Apply(ctx, newBundle(tt.bundleSync), Merge)
			if err != nil {
				t.Fatalf("Apply() failed: %v", err)
			}
			if res.BookkeepingUpdated != tt.wantUpdate {
				t.Errorf("BookkeepingUpdated = %v, want %v", res.BookkeepingUpdated, tt.wantUpdate)
			}
			_, hasPeer := getSetting(t, local, storage.KeySyncedWith)
			if hasPeer != tt.wantUpdate {
				t.Errorf("syncedWith written = %v, want %v", hasPeer, tt.wantUpdate)
			}
		})
	}
}

func TestApply_MergeUnparsableBundleTimestamp(t *testing.T) {
	ctx := context.Background()
	local := newMemory(t)
	b := newBundle(t0, rec(idA, "a"))
	b.Metadata.LastSyncAt = "not a time"

	res, err := New(local, nil).Apply(ctx, b, Merge)
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	if res.Added != 1 || res.BookkeepingUpdated {
		t.Errorf("Result = %+v", res)
	}
}

func TestApply_ManualConflicts(t *testing.T) {
	ctx := context.Background()
	local := newMemory(t)
	if err := local.SaveTodo(ctx, rec(idA, "local")); err != nil { // modified at t0
		t.Fatal(err)
	}

	b := newBundle(t0.Add(500*time.Millisecond), rec(idA, "remote"), rec(idB, "new"))
	_, err := New(local, nil).Apply(ctx, b, Manual)

	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("Apply() error = %v, want ConflictError", err)
	}
	if len(ce.Conflicts) != 1 || ce.Conflicts[0].ID != idA {
		t.Fatalf("Conflicts = %+v", ce.Conflicts)
	}
	if ce.Conflicts[0].Local.Content != "local" || ce.Conflicts[0].Remote.Content != "remote" {
		t.Errorf("conflict sides = %+v", ce.Conflicts[0])
	}

	todos, _ := local.GetTodos(ctx)
	if len(todos) != 1 || todos[0].Content != "local" {
		t.Errorf("manual apply with conflicts wrote data: %+v", todos)
	}
	if _, ok := getSetting(t, local, storage.KeyLastSyncAt); ok {
		t.Error("bookkeeping written despite conflicts")
	}
}

func TestApply_ManualWithoutConflicts(t *testing.T) {
	ctx := context.Background()
	local := newMemory(t)
	if err := local.SaveTodo(ctx, rec(idA, "local")); err != nil {
		t.Fatal(err)
	}

	// Exactly at the window edge is not a conflict.
	b := newBundle(t0.Add(ConflictWindow), rec(idA, "remote"))
	res, err := New(local, nil).Apply(ctx, b, Manual)
	if err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}
	if res.Strategy != Manual || res.Updated != 1 {
		t.Errorf("Result = %+v", res)
	}
	todos, _ := local.GetTodos(ctx)
	if todos[0].Content != "remote" {
		t.Errorf("content = %q, want remote", todos[0].Content)
	}
}

func TestDetectConflicts_Window(t *testing.T) {
	ctx := context.Background()
	local := newMemory(t)
	if err := local.SaveTodo(ctx, rec(idA, "a")); err != nil {
		t.Fatal(err)
	}
	r := New(local, nil)

	for _, offset := range []time.Duration{-999 * time.Millisecond, 0, 999 * time.Millisecond} {
		c, err := r.DetectConflicts(ctx, newBundle(t0.Add(offset), rec(idA, "b")))
		if err != nil {
			t.Fatal(err)
		}
		if len(c) != 1 {
			t.Errorf("offset %v: %d conflicts, want 1", offset, len(c))
		}
	}
	for _, offset := range []time.Duration{-time.Second, 2 * time.Second, time.Hour} {
		c, _ := r.DetectConflicts(ctx, newBundle(t0.Add(offset), rec(idA, "b")))
		if len(c) != 0 {
			t.Errorf("offset %v: %d conflicts, want 0", offset, len(c))
		}
	}
}

func TestApply_Rejects(t *testing.T) {
	ctx := context.Background()
	local := newMemory(t)
	r := New(local, nil)

	if _, err := r.Apply(ctx, nil, Overwrite); !bundle.IsFormatError(err) {
		t.Errorf("nil bundle error = %v, want FormatError", err)
	}

	future := newBundle(t0, rec(idA, "a"))
	future.Metadata.Version = bundle.FormatVersion + 1
	if _, err := r.Apply(ctx, future, Overwrite); !bundle.IsFormatError(err) {
		t.Errorf("future version error = %v, want FormatError", err)
	}

	if _, err := r.Apply(ctx, newBundle(t0, rec(idA, "a")), Strategy("yolo")); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("unknown strategy error = %v", err)
	}

	invalid := newBundle(t0, rec(idA, "a"), schema.TaskRecord{ID: "bad"})
	if _, err := r.Apply(ctx, invalid, Overwrite); !schema.IsValidationError(err) {
		t.Errorf("invalid record error = %v, want ValidationError", err)
	}

	todos, _ := local.GetTodos(ctx)
	if len(todos) != 0 {
		t.Errorf("rejected applies wrote %d records", len(todos))
	}
}

// brokenSettings fails every settings batch.
type brokenSettings struct {
	*storage.Memory
}

func (b brokenSettings) BulkSaveSettings(context.Context, map[string]json.RawMessage) error {
	return &store.StorageError{Op: "set settings", Err: errors.New("disk full")}
}

func TestApply_StorageErrorBetweenSteps(t *testing.T) {
	ctx := context.Background()
	mem := newMemory(t)

	b := newBundle(t0, rec(idA, "a"))
	b.Settings["theme"] = json.RawMessage(`"dark"`)

	_, err := New(brokenSettings{mem}, nil).Apply(ctx, b, Overwrite)
	if !store.IsStorageError(err) {
		t.Fatalf("Apply() error = %v, want StorageError", err)
	}

	// Records were committed before the settings step failed.
	todos, _ := mem.GetTodos(ctx)
	if len(todos) != 1 {
		t.Errorf("todos = %d, want 1", len(todos))
	}
}

func TestParseStrategy(t *testing.T) {
	for _, s := range []string{"overwrite", "MERGE", " manual "} {
		if _, err := ParseStrategy(s); err != nil {
			t.Errorf("ParseStrategy(%q) failed: %v", s, err)
		}
	}
	if _, err := ParseStrategy("replace"); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("ParseStrategy(replace) error = %v", err)
	}
}
