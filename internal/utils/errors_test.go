package utils

import (
	"errors"
	"testing"
)

func TestWrapError(t *testing.T) {
	root := errors.New("connection refused")
	wrapped := WrapError(root, "failed to fetch page", map[string]any{"page": 3})

	if wrapped.Error() != "failed to fetch page: connection refused" {
		t.Errorf("Unexpected message: %q", wrapped.Error())
	}
	if !errors.Is(wrapped, root) {
		t.Error("Expected the wrapped error to match the root via errors.Is")
	}

	var w *WrappedError
	if !errors.As(wrapped, &w) {
		t.Fatal("Expected a WrappedError")
	}
	if w.Context["page"] != 3 {
		t.Errorf("Context lost: %v", w.Context)
	}
}

func TestRootError(t *testing.T) {
	root := errors.New("disk full")
	inner := WrapError(root, "failed to save page", nil)
	outer := WrapError(inner, "job aborted", nil)

	if got := RootError(outer); got != root {
		t.Errorf("Expected the innermost error, got %v", got)
	}
	if got := RootError(root); got != root {
		t.Errorf("Expected an unwrapped error back unchanged, got %v", got)
	}
}
