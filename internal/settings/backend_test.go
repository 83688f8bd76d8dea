// ABOUTME: Tests for the file-backed settings persistence.
// ABOUTME: Covers round trips, missing files, and corrupt-document recovery.

package settings

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBackend(t *testing.T) *FileBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.json")
	backend, err := NewFileBackend(path, testLogger())
	if err != nil {
		t.Fatalf("NewFileBackend failed: %v", err)
	}
	return backend
}

func TestBackendRoundTrip(t *testing.T) {
	backend := newTestBackend(t)

	doc := Document{
		"moderation": map[string]any{
			"warn_threshold": 5.0,
			"nested": map[string]any{
				"deep": "value",
			},
		},
		"tickets": map[string]any{
			"warn_threshold": 3.0, // same local key, different namespace
		},
		"global_flag": true,
	}

	if err := backend.Save(doc); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := backend.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !reflect.DeepEqual(map[string]any(doc), map[string]any(loaded)) {
		t.Errorf("round trip mismatch:\n got %#v\nwant %#v", loaded, doc)
	}
}

func TestBackendLoadMissingFile(t *testing.T) {
	backend := newTestBackend(t)

	doc, err := backend.Load()
	if err != nil {
		t.Fatalf("Load of missing file failed: %v", err)
	}
	if len(doc) != 0 {
		t.Errorf("expected empty document, got %#v", doc)
	}
}

func TestBackendLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("writing corrupt file: %v", err)
	}

	backend, err := NewFileBackend(path, testLogger())
	if err != nil {
		t.Fatalf("NewFileBackend failed: %v", err)
	}

	doc, err := backend.Load()
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("err = %v, want ErrCorrupt", err)
	}
	if doc == nil || len(doc) != 0 {
		t.Errorf("expected empty fallback document, got %#v", doc)
	}
}

func TestBackendCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "settings.json")

	backend, err := NewFileBackend(path, testLogger())
	if err != nil {
		t.Fatalf("NewFileBackend failed: %v", err)
	}
	if err := backend.Save(Document{"k": "v"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("settings file not created: %v", err)
	}
}

func TestBackendSaveFailureSurfacesErrIO(t *testing.T) {
	// A regular file where the parent directory should be makes every
	// temp-file create fail with ENOTDIR, regardless of the test's uid
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("in the way"), 0644); err != nil {
		t.Fatalf("creating blocker: %v", err)
	}

	backend := &FileBackend{
		path:   filepath.Join(blocker, "settings.json"),
		logger: testLogger(),
	}

	err := backend.Save(Document{"k": "v"})
	if !errors.Is(err, ErrIO) {
		t.Errorf("err = %v, want ErrIO after both write attempts fail", err)
	}
}

func TestBackendSaveRetriesOnce(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("in the way"), 0644); err != nil {
		t.Fatalf("creating blocker: %v", err)
	}

	backend := &FileBackend{
		path:   filepath.Join(blocker, "settings.json"),
		logger: testLogger(),
	}

	// Clear the blockage during the retry delay so the second attempt
	// succeeds
	go func() {
		time.Sleep(retryDelay / 4)
		os.Remove(blocker)
		os.MkdirAll(blocker, 0755)
	}()

	if err := backend.Save(Document{"k": "v"}); err != nil {
		t.Fatalf("Save failed despite transient write error: %v", err)
	}

	loaded, err := backend.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded["k"] != "v" {
		t.Errorf("loaded = %#v, want the retried document", loaded)
	}
}

func TestBackendSaveLeavesNoTempFiles(t *testing.T) {
	backend := newTestBackend(t)

	if err := backend.Save(Document{"a": 1.0}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := backend.Save(Document{"a": 2.0}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(backend.path))
	if err != nil {
		t.Fatalf("reading dir: %v", err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only the settings file, found %v", names)
	}
}
