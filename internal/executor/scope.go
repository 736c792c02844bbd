package executor

import (
	"strings"

	"github.com/webllm/renderify/internal/template"
)

// planScope implements template.Scope with a prefix-routing rule:
// a path's leading segment selects which of state/event/context/vars it
// resolves against; "vars." is shorthand for "context.variables."; a path
// with none of those prefixes is treated as a "state." path.
type planScope struct {
	state   map[string]any
	event   map[string]any
	context map[string]any
}

func (s planScope) Lookup(path string) (any, bool) {
	prefix, rest, has := strings.Cut(path, ".")
	if !has {
		return template.MapScope(s.state).Lookup(path)
	}
	switch prefix {
	case "state":
		return template.MapScope(s.state).Lookup(rest)
	case "event":
		return template.MapScope(s.event).Lookup(rest)
	case "context":
		return template.MapScope(s.context).Lookup(rest)
	case "vars":
		variables, _ := s.context["variables"].(map[string]any)
		return template.MapScope(variables).Lookup(rest)
	default:
		return template.MapScope(s.state).Lookup(path)
	}
}
