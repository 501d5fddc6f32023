package fsutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "nested", "file.json")

	if err := WriteFileAtomic(target, []byte(`{"a":1}`), 0600); err != nil {
		t.Fatalf("WriteFileAtomic() failed: %v", err)
	}
	if err := WriteFileAtomic(target, []byte(`{"a":2}`), 0600); err != nil {
		t.Fatalf("WriteFileAtomic() overwrite failed: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"a":2}` {
		t.Errorf("content = %s", data)
	}

	entries, _ := os.ReadDir(filepath.Dir(target))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), TempFilePrefix) {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}
