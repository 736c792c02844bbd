// Package statemachine applies a RuntimePlan's declarative state
// transitions — `state.initial` deep-merged onto a persisted snapshot, then
// `set`/`increment` actions looked up by an incoming event's type — and
// produces the StateSnapshot the executor persists between renders.
package statemachine

import (
	"fmt"
	"sync"
	"time"

	"github.com/webllm/renderify/internal/runtimeplan"
)

// Event is the input that may trigger a transition: Type selects which of
// plan.state.transitions applies, Payload is what `{$from: "event.x"}`
// references resolve against.
type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Machine owns the live, in-memory whole-plan state for one execution: a
// single map resolved by dotted path, matching the template interpolator's
// `state.` prefix rather than per-node storage.
type Machine struct {
	mu     sync.Mutex
	planID string
	state  map[string]any
}

// New creates a Machine for planID, seeded from an existing snapshot if
// seed is non-nil.
func New(planID string, seed *runtimeplan.StateSnapshot) *Machine {
	m := &Machine{planID: planID, state: map[string]any{}}
	if seed != nil {
		m.state = cloneMap(seed.State)
	}
	return m
}

// SeedInitial deep-merges initial onto the machine's current state — the
// "state.initial is deep-merged onto any persisted snapshot on first
// execution" rule. Keys already present in state are left alone except where
// initial supplies a nested map for a key state also holds as a map, in
// which case the merge recurses; any other conflict is an overwrite by
// initial only when state had no value there yet.
func (m *Machine) SeedInitial(initial map[string]any) {
	if len(initial) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = deepMergeMissing(m.state, initial)
}

// Get returns a copy of the machine's whole state tree.
func (m *Machine) Get() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneMap(m.state)
}

// Apply looks up plan.state.transitions[event.Type]; if no transition is
// registered for that type, Apply is a no-op (not an error) — an executor
// receiving an event the plan doesn't declare a transition for still
// produces a usable render. When a transition exists, its actions run in
// list order; Apply returns every action actually applied, for the caller to
// attach as ExecutionResult.AppliedActions.
func (m *Machine) Apply(plan *runtimeplan.PlanState, evt Event) ([]runtimeplan.Action, error) {
	if plan == nil || evt.Type == "" {
		return nil, nil
	}
	transition, ok := plan.Transitions[evt.Type]
	if !ok {
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	applied := make([]runtimeplan.Action, 0, len(transition.Actions))
	for i, action := range transition.Actions {
		resolved, err := m.applyAction(action, evt)
		if err != nil {
			return applied, fmt.Errorf("statemachine: action %d (%s %s): %w", i, action.Verb, action.Path, err)
		}
		applied = append(applied, resolved)
	}
	return applied, nil
}

// applyAction executes one action against the machine's live state (caller
// holds m.mu) and returns the action with its Value/By resolved to the
// concrete value actually written, for inclusion in AppliedActions.
func (m *Machine) applyAction(action runtimeplan.Action, evt Event) (runtimeplan.Action, error) {
	if action.Path == "" {
		return action, fmt.Errorf("empty path")
	}
	switch action.Verb {
	case "set":
		value, err := m.resolveValue(action.Value, evt)
		if err != nil {
			return action, err
		}
		setPath(m.state, action.Path, value)
		return runtimeplan.Action{Verb: "set", Path: action.Path, Value: value}, nil
	case "increment":
		by, err := m.resolveValue(action.By, evt)
		if err != nil {
			return action, err
		}
		delta, ok := toFloat(by)
		if !ok {
			return action, fmt.Errorf("increment by-value is not numeric: %v", by)
		}
		current, _ := toFloat(getPath(m.state, action.Path))
		next := current + delta
		setPath(m.state, action.Path, next)
		return runtimeplan.Action{Verb: "increment", Path: action.Path, By: delta}, nil
	default:
		return action, fmt.Errorf("unknown verb %q", action.Verb)
	}
}

// resolveValue returns v verbatim unless it is a `{$from: "..."}` reference,
// in which case it dereferences a `state.` or `event.` path, using the same
// prefixes as the executor's template scope; `context.` and `vars.`
// references are rejected with an error.
func (m *Machine) resolveValue(v any, evt Event) (any, error) {
	ref, ok := v.(map[string]any)
	if !ok {
		return v, nil
	}
	from, ok := ref["$from"].(string)
	if !ok {
		return v, nil
	}
	prefix, rest, _ := cutDot(from)
	switch prefix {
	case "state":
		return getPath(m.state, rest), nil
	case "event":
		return getPath(evt.Payload, rest), nil
	case "context", "vars":
		// Context and vars are not visible inside the state machine itself
		// (it only ever sees state + the triggering event), and the executor
		// does not pre-resolve such references before Apply, so an action
		// that uses one fails.
		return nil, fmt.Errorf("$from %q is not resolvable inside the state machine", from)
	default:
		return nil, fmt.Errorf("unrecognized $from prefix %q", from)
	}
}

// Snapshot captures the machine's current state as an immutable
// StateSnapshot.
func (m *Machine) Snapshot() runtimeplan.StateSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return runtimeplan.StateSnapshot{
		PlanID:  m.planID,
		TakenAt: time.Now(),
		State:   cloneMap(m.state),
	}
}

func cutDot(s string) (prefix, rest string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}

// deepMergeMissing writes every key of overlay into base that base doesn't
// already have, recursing into nested maps present in both. base is mutated
// and returned.
func deepMergeMissing(base, overlay map[string]any) map[string]any {
	if base == nil {
		base = map[string]any{}
	}
	for k, v := range overlay {
		existing, hasExisting := base[k]
		if !hasExisting {
			base[k] = v
			continue
		}
		existingMap, existingIsMap := existing.(map[string]any)
		overlayMap, overlayIsMap := v.(map[string]any)
		if existingIsMap && overlayIsMap {
			base[k] = deepMergeMissing(existingMap, overlayMap)
		}
	}
	return base
}

func splitPath(path string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			parts = append(parts, path[start:i])
			start = i + 1
		}
	}
	parts = append(parts, path[start:])
	return parts
}

// setPath writes value at the dotted path in root, creating intermediate
// maps as needed.
func setPath(root map[string]any, path string, value any) {
	parts := splitPath(path)
	cur := root
	for i, part := range parts {
		if i == len(parts)-1 {
			cur[part] = value
			return
		}
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
}

// getPath reads the dotted path from root, returning nil if any segment is
// absent.
func getPath(root map[string]any, path string) any {
	if root == nil {
		return nil
	}
	parts := splitPath(path)
	var cur any = root
	for _, part := range parts {
		asMap, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := asMap[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case nil:
		return 0, true
	default:
		return 0, false
	}
}
