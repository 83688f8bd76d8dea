// ABOUTME: File-backed persistence for the settings document as one JSON snapshot.
// ABOUTME: Saves atomically via temp file + rename, with one retry on write failure.

package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ErrCorrupt indicates the persisted document could not be parsed. The
// backend recovers by returning an empty document alongside this error so
// the host can warn and continue rather than crash.
var ErrCorrupt = errors.New("settings document corrupt")

// ErrIO indicates a durable write failed after the retry.
var ErrIO = errors.New("settings write failed")

// retryDelay is how long to wait before retrying a failed write once.
const retryDelay = 250 * time.Millisecond

// Backend persists whole settings documents. Every Save is a full
// snapshot; there are no partial writes.
type Backend interface {
	Load() (Document, error)
	Save(Document) error
}

// FileBackend stores the document as a single JSON file.
type FileBackend struct {
	path   string
	logger *slog.Logger
}

// NewFileBackend creates a backend writing to the given path. Parent
// directories are created if needed.
func NewFileBackend(path string, logger *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating settings directory: %w", err)
	}
	return &FileBackend{
		path:   path,
		logger: logger.With("component", "settings"),
	}, nil
}

// Load reads the persisted document. A missing file yields an empty
// document with no error. An unparseable file yields an empty document
// together with ErrCorrupt so the caller can surface a warning.
func (b *FileBackend) Load() (Document, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return Document{}, nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("reading settings file: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

// Save writes the full document atomically: marshal, write to a uniquely
// named temp file in the same directory, fsync, then rename over the
// target so a concurrent reader never observes a partial document. A
// failed write is retried once before being surfaced as ErrIO.
func (b *FileBackend) Save(doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}

	if err := b.writeAtomic(data); err != nil {
		b.logger.Warn("settings write failed, retrying", "error", err)
		time.Sleep(retryDelay)
		if err := b.writeAtomic(data); err != nil {
			return fmt.Errorf("%w: %w", ErrIO, err)
		}
	}
	return nil
}

func (b *FileBackend) writeAtomic(data []byte) error {
	tmp := fmt.Sprintf("%s.tmp-%s", b.path, uuid.NewString()[:8])

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmp, b.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing settings file: %w", err)
	}
	return nil
}
