// ABOUTME: Hierarchical settings document addressed by dot-separated paths.
// ABOUTME: Provides lookup, set, and deep-clone over nested string-keyed maps.

package settings

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBadPath indicates a path is empty or contains an empty segment.
var ErrBadPath = errors.New("bad settings path")

// ErrPathConflict indicates an intermediate path segment holds a scalar,
// so the path cannot be traversed further.
var ErrPathConflict = errors.New("settings path conflict")

// ErrNotFound is returned when a requested path has no value.
var ErrNotFound = errors.New("setting not found")

// Document is the in-memory settings tree. Top-level keys are module
// namespaces (or reserved global keys); nested values are scalars or
// further maps, addressed by dot-separated paths.
type Document map[string]any

// splitPath validates and splits a dot-separated path into segments.
func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrBadPath)
	}
	segments := strings.Split(path, ".")
	for _, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrBadPath, path)
		}
	}
	return segments, nil
}

// Lookup returns the value at the given dot-path, if present.
func (d Document) Lookup(path string) (any, bool) {
	segments, err := splitPath(path)
	if err != nil {
		return nil, false
	}

	current := map[string]any(d)
	for _, seg := range segments[:len(segments)-1] {
		next, ok := current[seg]
		if !ok {
			return nil, false
		}
		child, ok := next.(map[string]any)
		if !ok {
			return nil, false
		}
		current = child
	}

	value, ok := current[segments[len(segments)-1]]
	return value, ok
}

// Set upserts the value at the given dot-path, creating intermediate maps
// as needed. Returns ErrPathConflict if an intermediate segment already
// holds a non-map value.
func (d Document) Set(path string, value any) error {
	segments, err := splitPath(path)
	if err != nil {
		return err
	}

	current := map[string]any(d)
	for _, seg := range segments[:len(segments)-1] {
		next, ok := current[seg]
		if !ok {
			child := map[string]any{}
			current[seg] = child
			current = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %q is not a mapping", ErrPathConflict, seg)
		}
		current = child
	}

	current[segments[len(segments)-1]] = value
	return nil
}

// Clone returns a deep copy of the document. Nested maps and slices are
// copied; scalar values are shared (they are immutable).
func (d Document) Clone() Document {
	return Document(cloneMap(d))
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// Kind names used for declared-type validation.
const (
	KindNil    = "nil"
	KindBool   = "bool"
	KindNumber = "number"
	KindString = "string"
	KindList   = "list"
	KindMap    = "map"
)

// kindOf maps a settings value to its declared-type kind. All numeric Go
// types collapse to "number" so values survive a JSON round trip (which
// decodes every number as float64) without changing kind.
func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return KindNil
	case bool:
		return KindBool
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return KindNumber
	case string:
		return KindString
	case []any:
		return KindList
	case map[string]any:
		return KindMap
	default:
		return fmt.Sprintf("%T", v)
	}
}
