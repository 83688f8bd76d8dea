// ABOUTME: Tests for the dot-path settings document.
// ABOUTME: Covers lookup, set, path conflicts, and deep cloning.

package settings

import (
	"errors"
	"reflect"
	"testing"
)

func TestDocumentSetAndLookup(t *testing.T) {
	doc := Document{}

	if err := doc.Set("moderation.warn_threshold", 5); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, ok := doc.Lookup("moderation.warn_threshold")
	if !ok {
		t.Fatal("Lookup did not find the value")
	}
	if value != 5 {
		t.Errorf("value = %v, want 5", value)
	}

	// Intermediate maps are created on demand
	nested, ok := doc["moderation"].(map[string]any)
	if !ok {
		t.Fatalf("moderation is %T, want map", doc["moderation"])
	}
	if nested["warn_threshold"] != 5 {
		t.Errorf("nested value = %v, want 5", nested["warn_threshold"])
	}
}

func TestDocumentLookupMissing(t *testing.T) {
	doc := Document{}

	if _, ok := doc.Lookup("nothing.here"); ok {
		t.Error("Lookup found a value in an empty document")
	}
}

func TestDocumentSetPathConflict(t *testing.T) {
	doc := Document{}
	if err := doc.Set("a.b", "scalar"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	err := doc.Set("a.b.c", 1)
	if !errors.Is(err, ErrPathConflict) {
		t.Errorf("err = %v, want ErrPathConflict", err)
	}
}

func TestDocumentBadPath(t *testing.T) {
	doc := Document{}

	for _, path := range []string{"", ".", "a..b", ".a", "a."} {
		if err := doc.Set(path, 1); !errors.Is(err, ErrBadPath) {
			t.Errorf("Set(%q) err = %v, want ErrBadPath", path, err)
		}
	}
}

func TestDocumentClone(t *testing.T) {
	doc := Document{}
	if err := doc.Set("a.b.c", "original"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := doc.Set("a.list", []any{1.0, 2.0}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	clone := doc.Clone()
	if !reflect.DeepEqual(map[string]any(doc), map[string]any(clone)) {
		t.Fatal("clone differs from original")
	}

	// Mutating the clone must not affect the original
	if err := clone.Set("a.b.c", "changed"); err != nil {
		t.Fatalf("Set on clone failed: %v", err)
	}
	value, _ := doc.Lookup("a.b.c")
	if value != "original" {
		t.Errorf("original mutated through clone: %v", value)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		value any
		want  string
	}{
		{nil, KindNil},
		{true, KindBool},
		{5, KindNumber},
		{5.0, KindNumber},
		{int64(5), KindNumber},
		{"five", KindString},
		{[]any{1}, KindList},
		{map[string]any{}, KindMap},
	}

	for _, tt := range tests {
		if got := kindOf(tt.value); got != tt.want {
			t.Errorf("kindOf(%v) = %q, want %q", tt.value, got, tt.want)
		}
	}
}
