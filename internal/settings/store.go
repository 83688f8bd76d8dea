// ABOUTME: Namespace-aware settings store with typed defaults and debounced saves.
// ABOUTME: Sole mutation gateway for the settings document; owns the in-memory tree.

package settings

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// ErrTypeMismatch indicates a Put with a value whose kind differs from the
// path's declared type, without coercion requested.
var ErrTypeMismatch = errors.New("setting type mismatch")

const (
	// DefaultDebounce is the window in which rapid mutations coalesce
	// into one persisted write.
	DefaultDebounce = 100 * time.Millisecond

	// DefaultMaxDelay caps how long a dirty document may stay unpersisted
	// under a continuous write storm.
	DefaultMaxDelay = time.Second
)

// Store owns the in-memory settings document and delegates durable writes
// to its Backend. All access is addressed by namespace plus dot-path; the
// empty namespace addresses reserved global (non-module) keys.
type Store struct {
	backend  Backend
	logger   *slog.Logger
	debounce time.Duration
	maxDelay time.Duration

	mu         sync.Mutex
	doc        Document
	types      map[string]string // fully qualified path -> declared kind
	dirty      bool
	pending    *time.Timer
	firstDirty time.Time
	closed     bool
}

// Option configures a Store.
type Option func(*Store)

// WithDebounce overrides the debounce window and its max-delay cap.
func WithDebounce(window, maxDelay time.Duration) Option {
	return func(s *Store) {
		s.debounce = window
		s.maxDelay = maxDelay
	}
}

// NewStore loads the persisted document through the backend and returns a
// ready store. A corrupt document is recovered as empty with a warning
// rather than failing the host.
func NewStore(backend Backend, logger *slog.Logger, opts ...Option) (*Store, error) {
	doc, err := backend.Load()
	if err != nil {
		if !errors.Is(err, ErrCorrupt) {
			return nil, err
		}
		logger.Warn("settings document corrupt, starting from empty", "error", err)
	}

	s := &Store{
		backend:  backend,
		logger:   logger.With("component", "settings"),
		debounce: DefaultDebounce,
		maxDelay: DefaultMaxDelay,
		doc:      doc,
		types:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// qualify prefixes a local path with its namespace. The empty namespace
// addresses top-level global keys directly.
func qualify(namespace, path string) string {
	if namespace == "" {
		return path
	}
	return namespace + "." + path
}

// GetOrCreate returns the value at namespace.path if present; otherwise it
// inserts the default, schedules a save, and returns the default. The
// default's kind becomes the path's declared type.
func (s *Store) GetOrCreate(namespace, path string, def any) (any, error) {
	full := qualify(namespace, path)
	if _, err := splitPath(full); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("settings store closed")
	}

	// First registration of a default declares the path's type, whether
	// or not a value already exists.
	if _, declared := s.types[full]; !declared && def != nil {
		s.types[full] = kindOf(def)
	}

	if value, ok := s.doc.Lookup(full); ok {
		return value, nil
	}

	if err := s.doc.Set(full, def); err != nil {
		return nil, err
	}
	s.markDirtyLocked()
	return def, nil
}

// Put upserts namespace.path = value. When a declared type exists and the
// value's kind differs, the write fails with ErrTypeMismatch unless coerce
// is set, in which case the value is converted to the declared type.
func (s *Store) Put(namespace, path string, value any, coerce bool) error {
	full := qualify(namespace, path)
	if _, err := splitPath(full); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("settings store closed")
	}

	if declared, ok := s.types[full]; ok && value != nil && kindOf(value) != declared {
		if !coerce {
			return fmt.Errorf("%w: %s declared %s, given %s",
				ErrTypeMismatch, full, declared, kindOf(value))
		}
		converted, err := coerceValue(value, declared)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrTypeMismatch, full, err)
		}
		value = converted
	}

	if err := s.doc.Set(full, value); err != nil {
		return err
	}
	s.markDirtyLocked()
	return nil
}

// Get returns the value at namespace.path. It is a pure read: no implicit
// creation, no side effects. Returns ErrNotFound when the path is absent.
func (s *Store) Get(namespace, path string) (any, error) {
	full := qualify(namespace, path)
	if _, err := splitPath(full); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.doc.Lookup(full)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, full)
	}
	return value, nil
}

// Document returns a deep copy of the current in-memory document.
func (s *Store) Document() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// Accessor returns a view of the store bound to the given namespace.
// The registry creates one per module at load time and closes it at
// unload; the namespace is fixed at creation and never inferred later.
func (s *Store) Accessor(namespace string) *Accessor {
	return &Accessor{store: s, namespace: namespace}
}

// markDirtyLocked schedules a debounced save. Rapid mutations reset the
// timer; the max-delay cap guarantees a write storm still persists at
// least once per maxDelay.
func (s *Store) markDirtyLocked() {
	now := time.Now()
	s.dirty = true

	if s.pending == nil {
		s.firstDirty = now
		s.pending = time.AfterFunc(s.debounce, s.saveTimerFired)
		return
	}
	if now.Sub(s.firstDirty) < s.maxDelay {
		s.pending.Reset(s.debounce)
	}
}

func (s *Store) saveTimerFired() {
	if err := s.Flush(); err != nil {
		s.logger.Error("debounced settings save failed", "error", err)
	}
}

// Flush synchronously persists the document if dirty.
func (s *Store) Flush() error {
	s.mu.Lock()
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	snapshot := s.doc.Clone()
	s.dirty = false
	s.mu.Unlock()

	if err := s.backend.Save(snapshot); err != nil {
		// Re-mark dirty and reschedule so the data is persisted even if
		// the host goes idle, not only on the next mutation.
		s.mu.Lock()
		s.dirty = true
		if !s.closed && s.pending == nil {
			s.firstDirty = time.Now()
			s.pending = time.AfterFunc(s.debounce, s.saveTimerFired)
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// Close flushes any pending write and stops the store.
func (s *Store) Close() error {
	err := s.Flush()
	s.mu.Lock()
	s.closed = true
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.mu.Unlock()
	return err
}

// coerceValue converts value to the declared kind where a sensible
// conversion exists.
func coerceValue(value any, want string) (any, error) {
	switch want {
	case KindString:
		switch v := value.(type) {
		case bool:
			return strconv.FormatBool(v), nil
		default:
			if kindOf(value) == KindNumber {
				return fmt.Sprintf("%v", value), nil
			}
		}
	case KindNumber:
		if v, ok := value.(string); ok {
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				return n, nil
			}
		}
		if v, ok := value.(bool); ok {
			if v {
				return float64(1), nil
			}
			return float64(0), nil
		}
	case KindBool:
		if v, ok := value.(string); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				return b, nil
			}
		}
	}
	return nil, fmt.Errorf("cannot coerce %s to %s", kindOf(value), want)
}
