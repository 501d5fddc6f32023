package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mschirtzinger/daysync/internal/schema"
	"github.com/mschirtzinger/daysync/internal/storage"
)

var migrateNow = time.Date(2026, 10, 16, 9, 0, 0, 0, time.Local)

// writeLegacy writes a local-storage style dump where every value is a string.
func writeLegacy(t *testing.T, values map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "localstorage.json")
	data, err := json.Marshal(values)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTarget(t *testing.T) *storage.SQLite {
	t.Helper()
	a := storage.NewSQLite(filepath.Join(t.TempDir(), "daysync.db"), nil)
	if err := a.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func legacyFixture() map[string]string {
	return map[string]string{
		KeyNotesHistory: `[
			{"id": "11111111-1111-4111-8111-111111111111", "date": "2026-10-14 (Wed)", "title": "old", "content": "first", "createdAt": "2026-10-14 08:00:00"},
			{"date": "2026-10-15 (Thu)", "content": "no id", "createdAt": "2026-10-15 08:00:00"},
			{"id": "bad-id", "date": "2026-10-15 (Thu)", "content": "broken"},
			"not an object"
		]`,
		KeyTodayNote:       `{"date": "2026-10-16 (Fri)", "title": "today", "content": "today's note", "createdAt": "2026-10-16 08:00:00"}`,
		KeyTodayNoteDate:   "2026-10-16",
		KeyMotivationDate:  "2026-10-16",
		KeyTodayMotivation: "You can do it",
		"unrelated":        "kept",
	}
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	path := writeLegacy(t, legacyFixture())
	target := newTarget(t)

	res, err := Migrate(ctx, target, MigrateOptions{Source: NewFileStore(path), Now: migrateNow})
	if err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	if res.Imported != 3 || res.Skipped != 2 || res.SettingsMigrated != 2 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Errors) != 2 {
		t.Errorf("Errors = %v", res.Errors)
	}

	todos, err := target.GetTodos(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(todos) != 3 {
		t.Fatalf("got %d todos, want 3", len(todos))
	}
	for _, r := range todos {
		if !schema.IsUUID(r.ID) {
			t.Errorf("record has invalid id %q", r.ID)
		}
	}

	v, ok, err := storage.GetSettingAs[string](ctx, target, KeyTodayMotivation)
	if err != nil || !ok || v != "You can do it" {
		t.Errorf("todayMotivation = %q, %v, %v", v, ok, err)
	}
	done, _, _ := storage.GetSettingAs[bool](ctx, target, storage.KeyMigrationCompleted)
	if !done {
		t.Error("migration flag not set")
	}

	// Legacy keys are gone, unrelated keys survive.
	src := NewFileStore(path)
	for _, k := range []string{KeyNotesHistory, KeyTodayNote, KeyTodayNoteDate, KeyMotivationDate, KeyTodayMotivation} {
		if _, ok, _ := src.Get(k); ok {
			t.Errorf("legacy key %s not removed", k)
		}
	}
	if v, ok, _ := src.Get("unrelated"); !ok || v != "kept" {
		t.Errorf("unrelated key = %q, %v", v, ok)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	target := newTarget(t)
	path := writeLegacy(t, legacyFixture())

	if _, err := Migrate(ctx, target, MigrateOptions{Source: NewFileStore(path), Now: migrateNow}); err != nil {
		t.Fatal(err)
	}
	first, _ := target.GetTodos(ctx)
	firstSettings, _ := target.Settings(ctx)

	// Even with the legacy data restored, the flag prevents a second import.
	path2 := writeLegacy(t, legacyFixture())
	res, err := Migrate(ctx, target, MigrateOptions{Source: NewFileStore(path2), Now: migrateNow.Add(time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	if !res.AlreadyDone {
		t.Error("second run did not report AlreadyDone")
	}

	second, _ := target.GetTodos(ctx)
	secondSettings, _ := target.Settings(ctx)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("todos changed on second run (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(firstSettings, secondSettings); diff != "" {
		t.Errorf("settings changed on second run (-first +second):\n%s", diff)
	}
}

// stuckStore cannot remove keys.
type stuckStore struct {
	*FileStore
}

func (s stuckStore) Remove(...string) error { return errors.New("read-only storage") }

func TestMigrate_FailureLeavesFlagUnset(t *testing.T) {
	ctx := context.Background()
	target := newTarget(t)
	path := writeLegacy(t, legacyFixture())

	_, err := Migrate(ctx, target, MigrateOptions{Source: stuckStore{NewFileStore(path)}, Now: migrateNow})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok, _ := target.GetSetting(ctx, storage.KeyMigrationCompleted); ok {
		t.Error("migration flag set after failure")
	}
	first, _ := target.GetTodos(ctx)

	// Retrying once the cause is fixed imports the same records.
	if _, err := Migrate(ctx, target, MigrateOptions{Source: NewFileStore(path), Now: migrateNow.Add(time.Minute)}); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	second, _ := target.GetTodos(ctx)
	if len(second) != len(first) {
		t.Errorf("retry duplicated records: %d -> %d", len(first), len(second))
	}
}

func TestMigrate_MalformedHistory(t *testing.T) {
	ctx := context.Background()
	target := newTarget(t)
	path := writeLegacy(t, map[string]string{KeyNotesHistory: "{not json"})

	if _, err := Migrate(ctx, target, MigrateOptions{Source: NewFileStore(path)}); err == nil {
		t.Fatal("expected error for malformed history")
	}
	if _, ok, _ := target.GetSetting(ctx, storage.KeyMigrationCompleted); ok {
		t.Error("migration flag set after failure")
	}
}

func TestMigrate_NoLegacyData(t *testing.T) {
	ctx := context.Background()
	target := newTarget(t)

	res, err := Migrate(ctx, target, MigrateOptions{Source: NewFileStore(filepath.Join(t.TempDir(), "missing.json"))})
	if err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	if res.Imported != 0 {
		t.Errorf("Imported = %d", res.Imported)
	}
	done, _, _ := storage.GetSettingAs[bool](ctx, target, storage.KeyMigrationCompleted)
	if !done {
		t.Error("empty migration should still complete")
	}
}

func TestMigrate_DryRun(t *testing.T) {
	ctx := context.Background()
	target := newTarget(t)
	path := writeLegacy(t, legacyFixture())

	res, err := Migrate(ctx, target, MigrateOptions{Source: NewFileStore(path), Now: migrateNow, DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Imported != 3 {
		t.Errorf("Imported = %d", res.Imported)
	}
	todos, _ := target.GetTodos(ctx)
	if len(todos) != 0 {
		t.Errorf("dry run wrote %d records", len(todos))
	}
	if _, ok, _ := NewFileStore(path).Get(KeyNotesHistory); !ok {
		t.Error("dry run removed legacy data")
	}
}

func TestFileStore_InlineJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ls.json")
	if err := os.WriteFile(path, []byte(`{"notesHistory": [{"content": "x"}], "motivationDate": "2026-10-16"}`), 0600); err != nil {
		t.Fatal(err)
	}
	fs := NewFileStore(path)

	v, ok, err := fs.Get(KeyNotesHistory)
	if err != nil || !ok {
		t.Fatalf("Get() = %q, %v, %v", v, ok, err)
	}
	if v != `[{"content": "x"}]` {
		t.Errorf("Get() = %q", v)
	}
	if v, _, _ := fs.Get(KeyMotivationDate); v != "2026-10-16" {
		t.Errorf("Get() = %q", v)
	}
}
