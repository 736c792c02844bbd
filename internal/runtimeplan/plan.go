package runtimeplan

import (
	"encoding/json"
	"time"
)

// Capabilities declares what a RuntimePlan is permitted to do during
// execution: which sandbox mode its components run under, which module
// specifiers it may resolve, and the resource ceilings the executor must
// enforce.
type Capabilities struct {
	SandboxMode      string
	AllowedOrigins   []string
	MaxModules       int
	MaxRenderBudget  time.Duration
	MaxTemplateDepth int
	Network          bool
	// SandboxFailClosed suppresses the sandbox dispatcher's fallback to
	// "none" when every other sandbox mode's host is unavailable
	// (browserSourceSandboxFailClosed), keeping the plan's fallback root
	// instead of running the author's source unsandboxed.
	SandboxFailClosed bool
}

// capabilitiesWire is Capabilities' JSON shape: MaxRenderBudget is
// expressed in milliseconds on the wire (matching the rest of the plan's
// millisecond-denominated budgets) rather than time.Duration's default
// nanosecond encoding.
type capabilitiesWire struct {
	SandboxMode       string   `json:"sandboxMode,omitempty"`
	AllowedOrigins    []string `json:"allowedOrigins,omitempty"`
	MaxModules        int      `json:"maxModules,omitempty"`
	MaxRenderBudget   int64    `json:"maxRenderBudgetMs,omitempty"`
	MaxTemplateDepth  int      `json:"maxTemplateDepth,omitempty"`
	Network           bool     `json:"network,omitempty"`
	SandboxFailClosed bool     `json:"browserSourceSandboxFailClosed,omitempty"`
}

func (c Capabilities) MarshalJSON() ([]byte, error) {
	return json.Marshal(capabilitiesWire{
		SandboxMode:       c.SandboxMode,
		AllowedOrigins:    c.AllowedOrigins,
		MaxModules:        c.MaxModules,
		MaxRenderBudget:   c.MaxRenderBudget.Milliseconds(),
		MaxTemplateDepth:  c.MaxTemplateDepth,
		Network:           c.Network,
		SandboxFailClosed: c.SandboxFailClosed,
	})
}

func (c *Capabilities) UnmarshalJSON(data []byte) error {
	var wire capabilitiesWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*c = Capabilities{
		SandboxMode:       wire.SandboxMode,
		AllowedOrigins:    wire.AllowedOrigins,
		MaxModules:        wire.MaxModules,
		MaxRenderBudget:   time.Duration(wire.MaxRenderBudget) * time.Millisecond,
		MaxTemplateDepth:  wire.MaxTemplateDepth,
		Network:           wire.Network,
		SandboxFailClosed: wire.SandboxFailClosed,
	}
	return nil
}

// ManifestEntry is one declared module dependency: a specifier, the URL it
// resolves to once specifier-class resolution and any alias table have run,
// the integrity hash the fetched bytes must match, and whether it's pinned
// to an exact version or eligible for autopin resolution. ResolvedUrl wins
// over whatever the loader would otherwise derive from Specifier alone —
// "when a plan declares moduleManifest[specifier], its resolvedUrl wins."
type ManifestEntry struct {
	Specifier   string `json:"specifier"`
	ResolvedUrl string `json:"resolvedUrl,omitempty"`
	Version     string `json:"version,omitempty"`
	Integrity   string `json:"integrity,omitempty"`
	Signer      string `json:"signer,omitempty"`
	Pinned      bool   `json:"pinned,omitempty"`
}

// RuntimePlan is the top-level declarative artifact: a root Node tree, the
// module manifest it depends on, and the capabilities it executes under.
//
// Source, when non-empty, is raw JSX/TSX the executor transpiles into a
// fresh Root on every execution (internal/executor step 6); a plan with no
// Source executes its pre-built Root directly (step 7). FailClosed governs
// which one wins when transpilation fails: true keeps the last-known-good
// Root, false surfaces the transpile error.
type RuntimePlan struct {
	ID           string          `json:"id"`
	Root         *Node           `json:"root,omitempty"`
	Source       string          `json:"source,omitempty"`
	SourceLang   string          `json:"sourceLanguage,omitempty"`
	SourceRuntime string         `json:"sourceRuntime,omitempty"`
	FailClosed   bool            `json:"failClosed,omitempty"`
	Imports      []string        `json:"imports,omitempty"`
	Manifest     []ManifestEntry `json:"manifest,omitempty"`
	Capabilities Capabilities    `json:"capabilities"`
	State        *PlanState      `json:"state,omitempty"`
	CreatedAt    time.Time       `json:"createdAt,omitempty"`
}

// PlanState is the state-machine half of a RuntimePlan: the value deep-merged
// onto any persisted snapshot on first execution, and the table of
// event.type-keyed transitions an incoming Event may apply to it.
type PlanState struct {
	Initial     map[string]any        `json:"initial,omitempty"`
	Transitions map[string]Transition `json:"transitions,omitempty"`
}

// Transition is the ordered action list a matching event.type applies to the
// current snapshot.
type Transition struct {
	Actions []Action `json:"actions"`
}

// Action is one step of a transition: either `set path=P value=V` or
// `increment path=P by=N`, per internal/statemachine's verb vocabulary. Value
// may be a literal JSON value or a Ref (`{$from: "state.x"|"event.x"|
// "context.x"|"vars.x"}`) resolved against the live execution inputs.
type Action struct {
	Verb  string `json:"verb"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
	By    any    `json:"by,omitempty"`
}

// StateSnapshot is a point-in-time, last-write-wins capture of a single
// plan's whole state tree (the value `state.` paths resolve against),
// suitable for persistence and later restoration via internal/statemachine.
// It is created on the first execution that declares plan.state.initial
// and mutated by successful transitions; no operation in this module
// clears a stored snapshot.
type StateSnapshot struct {
	PlanID  string         `json:"planId"`
	TakenAt time.Time      `json:"takenAt"`
	State   map[string]any `json:"state,omitempty"`
}

// Diagnostic is a single non-fatal observation surfaced during execution
// (an unused manifest entry, a template depth warning, a dropped
// component). Diagnostics never abort execution by themselves. Code is the
// stable, matchable identifier (see codes.go); Message is free text for
// humans only — callers must branch on Code, never on Message.
type Diagnostic struct {
	Severity string `json:"severity"`
	Code     string `json:"code,omitempty"`
	Phase    string `json:"phase"`
	NodeID   string `json:"nodeId,omitempty"`
	Message  string `json:"message"`
}

const (
	DiagnosticSeverityInfo  = "info"
	DiagnosticSeverityWarn  = "warn"
	DiagnosticSeverityError = "error"
)

// ExecutionResult is what Execute returns: the fully resolved node tree
// (templates interpolated, component nodes loaded and substituted), every
// diagnostic raised along the way, the actions a matching transition
// actually applied (in application order), and the state snapshot persisted
// for the next execution.
type ExecutionResult struct {
	PlanID         string        `json:"planId"`
	Rendered       *Node         `json:"rendered,omitempty"`
	Diagnostics    []Diagnostic  `json:"diagnostics,omitempty"`
	State          StateSnapshot `json:"state"`
	AppliedActions []Action      `json:"appliedActions,omitempty"`
}
