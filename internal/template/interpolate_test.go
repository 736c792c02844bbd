package template

import (
	"errors"
	"testing"
)

func TestInterpolator_ExpandsSimplePath(t *testing.T) {
	scope := MapScope{"user": map[string]any{"name": "Ada"}}
	in := New(scope, 0)
	got, err := in.Expand("hello {{user.name}}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello Ada" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestInterpolator_UnresolvedPathLeftVerbatim(t *testing.T) {
	in := New(MapScope{}, 0)
	got, err := in.Expand("hello {{missing.path}}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello {{missing.path}}" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestInterpolator_RecursiveExpansion(t *testing.T) {
	scope := MapScope{
		"greeting": "hi {{name}}",
		"name":     "Ada",
	}
	in := New(scope, 4)
	got, err := in.Expand("{{greeting}}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hi Ada" {
		t.Fatalf("unexpected result: %q", got)
	}
}

func TestInterpolator_DetectsCycle(t *testing.T) {
	scope := MapScope{
		"a": "{{b}}",
		"b": "{{a}}",
	}
	in := New(scope, 8)
	_, err := in.Expand("{{a}}")
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
}

func TestInterpolator_MaxDepthExceeded(t *testing.T) {
	scope := MapScope{
		"a": "{{b}}",
		"b": "{{c}}",
		"c": "{{d}}",
		"d": "{{e}}",
		"e": "done",
	}
	in := New(scope, 2)
	_, err := in.Expand("{{a}}")
	if !errors.Is(err, ErrMaxDepthExceeded) {
		t.Fatalf("expected ErrMaxDepthExceeded, got %v", err)
	}
}
