// Package template resolves `{{path.to.value}}` expressions embedded in
// plan attribute strings against a props/state scope, with a bounded
// expansion depth and cycle detection so a self-referential scope can never
// hang the executor.
package template

import (
	"fmt"
	"strings"
)

const defaultMaxDepth = 8

// ErrMaxDepthExceeded is returned when resolving an expression requires
// expanding past the configured depth limit.
var ErrMaxDepthExceeded = fmt.Errorf("template: max expansion depth exceeded")

// ErrCycle is returned when an expression's expansion chain revisits a path
// it has already started expanding.
var ErrCycle = fmt.Errorf("template: cyclic reference")

// Scope resolves a dotted path to a value. Implementations typically wrap a
// map[string]any or a merged props+state view.
type Scope interface {
	Lookup(path string) (any, bool)
}

// MapScope is the common Scope implementation: a flat or nested
// map[string]any, looked up by dotted path.
type MapScope map[string]any

func (m MapScope) Lookup(path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = map[string]any(m)
	for _, part := range parts {
		asMap, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := asMap[part]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// Interpolator expands `{{...}}` expressions against a Scope, guarding
// against runaway recursion via maxDepth and against A -> B -> A cycles via
// a per-call visited set (the "WeakSet-equivalent cycle guard").
type Interpolator struct {
	scope    Scope
	maxDepth int
}

// New returns an Interpolator bound to scope. maxDepth <= 0 uses the
// default of 8.
func New(scope Scope, maxDepth int) *Interpolator {
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	return &Interpolator{scope: scope, maxDepth: maxDepth}
}

// Expand replaces every `{{path}}` occurrence in s with its resolved,
// stringified value. A path that resolves to another `{{...}}`-bearing
// string is recursively expanded up to maxDepth. An unresolved path is left
// verbatim in the output (not an error) — a missing prop is a rendering
// concern, not a template-engine concern.
func (in *Interpolator) Expand(s string) (string, error) {
	return in.expand(s, map[string]bool{}, 0)
}

func (in *Interpolator) expand(s string, visiting map[string]bool, depth int) (string, error) {
	if depth > in.maxDepth {
		return "", ErrMaxDepthExceeded
	}
	var out strings.Builder
	i := 0
	for i < len(s) {
		start := strings.Index(s[i:], "{{")
		if start < 0 {
			out.WriteString(s[i:])
			break
		}
		start += i
		out.WriteString(s[i:start])
		end := strings.Index(s[start:], "}}")
		if end < 0 {
			out.WriteString(s[start:])
			break
		}
		end += start
		path := strings.TrimSpace(s[start+2 : end])
		i = end + 2

		if visiting[path] {
			return "", fmt.Errorf("%w: %s", ErrCycle, path)
		}

		value, ok := in.scope.Lookup(path)
		if !ok {
			out.WriteString(s[start:i])
			continue
		}
		rendered := stringify(value)
		if strings.Contains(rendered, "{{") {
			visiting[path] = true
			expanded, err := in.expand(rendered, visiting, depth+1)
			delete(visiting, path)
			if err != nil {
				return "", err
			}
			rendered = expanded
		}
		out.WriteString(rendered)
	}
	return out.String(), nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
