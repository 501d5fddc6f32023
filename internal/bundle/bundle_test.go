package bundle

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/tidwall/gjson"

	"github.com/mschirtzinger/daysync/internal/device"
	"github.com/mschirtzinger/daysync/internal/schema"
	"github.com/mschirtzinger/daysync/internal/storage"
)

var testNow = time.Date(2026, 10, 16, 9, 30, 0, 123000000, time.UTC)

func newSource(t *testing.T) *storage.Memory {
	t.Helper()
	m := storage.NewMemory()
	if err := m.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	return m
}

func sampleRecord() schema.TaskRecord {
	return schema.TaskRecord{
		ID:        "11111111-1111-4111-8111-111111111111",
		Date:      "2026-10-16 (Fri)",
		Title:     "Daily task - 2026-10-16 (Fri)",
		Content:   "step outside for five minutes",
		CreatedAt: "2026-10-16 09:00:00",
	}
}

func TestExport_EmptyStore(t *testing.T) {
	ctx := context.Background()
	src := newSource(t)
	ids := device.NewStore(filepath.Join(t.TempDir(), "device.toml"))

	id, err := ids.Identity()
	if err != nil {
		t.Fatal(err)
	}
	first, err := Export(ctx, src, id, testNow)
	if err != nil {
		t.Fatalf("Export() failed: %v", err)
	}

	data, err := Encode(first)
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	if !strings.Contains(string(data), `"todos": []`) {
		t.Errorf("empty todos not encoded as []:\n%s", data)
	}
	if !strings.Contains(string(data), `"settings": {}`) {
		t.Errorf("empty settings not encoded as {}:\n%s", data)
	}
	if first.Metadata.LastSyncAt != "2026-10-16T09:30:00.123Z" {
		t.Errorf("LastSyncAt = %q", first.Metadata.LastSyncAt)
	}
	if first.Metadata.Version != FormatVersion {
		t.Errorf("Version = %d", first.Metadata.Version)
	}

	id2, _ := ids.Identity()
	second, err := Export(ctx, src, id2, testNow.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if second.Metadata.DeviceID != first.Metadata.DeviceID {
		t.Errorf("deviceId changed between exports: %q != %q", second.Metadata.DeviceID, first.Metadata.DeviceID)
	}
}

func TestExport_IncludesSettings(t *testing.T) {
	ctx := context.Background()
	src := newSource(t)
	if err := src.SaveTodo(ctx, sampleRecord()); err != nil {
		t.Fatal(err)
	}
	if err := src.SaveSetting(ctx, "motivationDate", "2026-10-16"); err != nil {
		t.Fatal(err)
	}

	b, err := Export(ctx, src, device.Identity{DeviceID: "d", DeviceName: "n"}, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]schema.TaskRecord{sampleRecord()}, b.Todos); diff != "" {
		t.Errorf("todos mismatch (-want +got):\n%s", diff)
	}
	if string(b.Settings["motivationDate"]) != `"2026-10-16"` {
		t.Errorf("settings = %v", b.Settings)
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	in := &Bundle{
		Metadata: Metadata{DeviceID: "d", DeviceName: "Linux - 2026-10-16", LastSyncAt: "2026-10-16T09:30:00.000Z", Version: 1},
		Todos:    []schema.TaskRecord{sampleRecord()},
		Settings: map[string]json.RawMessage{"lastSyncAt": json.RawMessage(`"2026-10-15T00:00:00.000Z"`)},
	}
	data, err := Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n  \"metadata\"") {
		t.Errorf("bundle is not pretty printed:\n%s", data)
	}

	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if diff := cmp.Diff(in.Metadata, out.Metadata); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(in.Todos, out.Todos); diff != "" {
		t.Errorf("todos mismatch (-want +got):\n%s", diff)
	}
}

func TestEncode_WritesFormatVersion(t *testing.T) {
	data, err := Encode(&Bundle{Metadata: Metadata{DeviceID: "d", LastSyncAt: FormatTimestamp(testNow), Version: FormatVersion}})
	if err != nil {
		t.Fatal(err)
	}
	meta := gjson.GetBytes(data, "metadata")
	if got := meta.Get("formatVersion"); got.Int() != FormatVersion {
		t.Errorf("metadata.formatVersion = %s, want %d", got.Raw, FormatVersion)
	}
	for _, key := range []string{"deviceId", "deviceName", "lastSyncAt"} {
		if !meta.Get(key).Exists() {
			t.Errorf("metadata.%s missing:\n%s", key, data)
		}
	}
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		reason string
	}{
		{"not json", `{"metadata":`, "not valid JSON"},
		{"array root", `[]`, "top level must be an object"},
		{"missing metadata", `{"todos": []}`, "missing metadata"},
		{"todos not an array", `{"todos": "not-an-array"}`, "missing metadata"},
		{"todos string with metadata", `{"metadata": {}, "todos": "not-an-array"}`, "todos must be an array"},
		{"missing todos", `{"metadata": {}}`, "missing todos"},
		{"metadata not object", `{"metadata": 3, "todos": []}`, "metadata must be an object"},
		{"settings array", `{"metadata": {}, "todos": [], "settings": []}`, "settings must be an object"},
		{"future version", `{"metadata": {"version": 2}, "todos": []}`, "unsupported bundle version"},
		{"fractional version", `{"metadata": {"version": 1.5}, "todos": []}`, "must be an integer"},
		{"future formatVersion", `{"metadata": {"formatVersion": 2}, "todos": []}`, "unsupported bundle version"},
		{"numeric device id", `{"metadata": {"deviceId": 7}, "todos": []}`, "metadata.deviceId must be a string"},
		{"todo not object", `{"metadata": {}, "todos": [1]}`, "todos[0] must be an object"},
		{"invalid record", `{"metadata": {}, "todos": [{"id": "x"}]}`, "todos[0] is not a valid task record"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input))
			if !IsFormatError(err) {
				t.Fatalf("Decode() error = %v, want FormatError", err)
			}
			if !strings.Contains(err.Error(), tt.reason) {
				t.Errorf("Decode() error = %q, want it to contain %q", err.Error(), tt.reason)
			}
		})
	}
}

func TestDecode_Defaults(t *testing.T) {
	b, err := Decode([]byte(`{"metadata": {"deviceId": "d", "lastSyncAt": "2026-10-16T00:00:00.000Z"}, "todos": []}`))
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if b.Metadata.Version != 1 {
		t.Errorf("Version = %d, want 1", b.Metadata.Version)
	}
	if b.Settings == nil {
		t.Error("Settings is nil")
	}

	b, err = Decode([]byte(`{"metadata": {"version": 1}, "todos": []}`))
	if err != nil {
		t.Fatalf("Decode() with version failed: %v", err)
	}
	if b.Metadata.Version != 1 {
		t.Errorf("Version = %d, want 1", b.Metadata.Version)
	}
}

func TestWriteFileReadFile(t *testing.T) {
	dir := t.TempDir()
	in := &Bundle{Metadata: Metadata{DeviceID: "d", LastSyncAt: FormatTimestamp(testNow), Version: 1}}

	path, err := WriteFile(dir, in, testNow)
	if err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if filepath.Base(path) != "motivation-adhd-backup-2026-10-16.json" {
		t.Errorf("filename = %s", filepath.Base(path))
	}

	out, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	if out.Metadata.DeviceID != "d" || len(out.Todos) != 0 {
		t.Errorf("ReadFile() = %+v", out)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"todos": "not-an-array"}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(bad); !IsFormatError(err) {
		t.Errorf("ReadFile(bad) error = %v, want FormatError", err)
	}
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("2026-10-16T09:30:00.123Z")
	if err != nil {
		t.Fatal(err)
	}
	if !ts.Equal(testNow) {
		t.Errorf("ParseTimestamp() = %v, want %v", ts, testNow)
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Error("expected error for unparsable timestamp")
	}
}
