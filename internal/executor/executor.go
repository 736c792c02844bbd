// Package executor implements the RuntimePlan orchestration pipeline:
// capability resolution, state application, transpilation, sandboxed
// component resolution, template interpolation, and state persistence.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/webllm/renderify/internal/artifactstore"
	"github.com/webllm/renderify/internal/moduleloader"
	"github.com/webllm/renderify/internal/preflight"
	"github.com/webllm/renderify/internal/rplog"
	"github.com/webllm/renderify/internal/runtimeplan"
	"github.com/webllm/renderify/internal/sandbox"
	"github.com/webllm/renderify/internal/statemachine"
	"github.com/webllm/renderify/internal/transpiler"
)

// AbortError marks a run that stopped because its context was already
// cancelled or its render budget was exhausted, distinguishing a
// caller-initiated abort from a timeout.
type AbortError struct {
	Op     string
	Reason string
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// DefaultCapabilities fills in any zero-valued field of a plan's
// Capabilities before execution, the "merge plan capabilities with
// executor defaults" step.
var DefaultCapabilities = runtimeplan.Capabilities{
	SandboxMode:      "shadowrealm",
	MaxModules:       32,
	MaxRenderBudget:  5 * time.Second,
	MaxTemplateDepth: 8,
}

// Runtime bundles the capability-holding collaborators every execution
// needs, generalizing InsightifyCore's Runtime interface (GetRepoFS,
// Artifacts, GetResolver, GetLLM, ...) into a concrete struct scoped to
// plan rendering instead of worker orchestration.
type Runtime struct {
	Loader     *moduleloader.Loader
	Transpiler *transpiler.Transpiler
	Dispatcher *sandbox.Dispatcher
	Store      Store

	// FailOnPreflightError short-circuits Execute once the dependency
	// preflight pass raises any error-severity diagnostic
	// (failOnDependencyPreflightError), returning the plan's fallback root
	// without attempting the real render walk.
	FailOnPreflightError bool

	// Logger receives a line for every diagnostic Execute raises, tagged
	// with the phase that raised it. A nil Logger is valid: log calls are
	// skipped rather than logging to a default writer, so tests that build
	// a bare Runtime stay silent.
	Logger *rplog.Logger

	// Artifacts, when set, receives a durable copy of every successful
	// ExecutionResult under runID plan.ID, path "result.json" — an audit
	// trail independent of Store's latest-snapshot-only semantics. A nil
	// Artifacts skips persistence entirely.
	Artifacts artifactstore.Store
}

// NewRuntime builds a Runtime with sensible defaults for every collaborator
// a caller doesn't supply.
func NewRuntime(loader *moduleloader.Loader, tp *transpiler.Transpiler) *Runtime {
	return &Runtime{
		Loader:     loader,
		Transpiler: tp,
		Dispatcher: sandbox.NewDispatcher(),
		Store:      NewMemoryStore(),
	}
}

// loaderResolver adapts moduleloader.Loader into preflight.Resolver over a
// plan's manifest: a probe resolves the specifier the same way
// renderComponent would (manifest entry, falling back to CDN/alias
// resolution) and attempts the loader's fetch, without consuming the
// result beyond confirming it loaded.
type loaderResolver struct {
	loader   *moduleloader.Loader
	manifest map[string]runtimeplan.ManifestEntry
}

func (r *loaderResolver) Probe(ctx context.Context, specifier string) error {
	entry, ok := r.manifest[specifier]
	if !ok {
		entry = runtimeplan.ManifestEntry{Specifier: specifier}
	}
	_, err := r.loader.Resolve(ctx, entry)
	return err
}

// logDiagnostic mirrors a diagnostic to rt.Logger, if set, keyed by its
// severity so warnings are visible without replaying the whole result.
func (rt *Runtime) logDiagnostic(d runtimeplan.Diagnostic) {
	if rt.Logger == nil {
		return
	}
	if d.Severity == runtimeplan.DiagnosticSeverityWarn {
		rt.Logger.Warn("[%s] %s (node=%s)", d.Phase, d.Message, d.NodeID)
	} else {
		rt.Logger.Info("[%s] %s (node=%s)", d.Phase, d.Message, d.NodeID)
	}
}

// ExecuteRequest is the input to Execute, mirroring
// execute({plan, context, event, stateOverride, signal}).
type ExecuteRequest struct {
	Plan          *runtimeplan.RuntimePlan
	Context       map[string]any
	Event         *statemachine.Event
	StateOverride *runtimeplan.StateSnapshot
}

// Execute runs the nine-step orchestration pipeline over req and returns
// the rendered node tree, diagnostics, and the new state snapshot. It never
// mutates req.Plan: every transpile, sandbox resolution, and template
// expansion operates on a fresh clone derived from the plan, never writing
// fields back onto it.
func (rt *Runtime) Execute(ctx context.Context, req ExecuteRequest) (*runtimeplan.ExecutionResult, error) {
	if req.Plan == nil {
		return nil, fmt.Errorf("executor: nil plan")
	}

	// Step 1: validate signal not already aborted.
	if err := ctx.Err(); err != nil {
		return nil, &AbortError{Op: "execute", Reason: "caller aborted before start"}
	}

	// Step 2: capability resolution.
	caps := mergeCapabilities(req.Plan.Capabilities, DefaultCapabilities)
	grant, err := rt.Dispatcher.Resolve(caps)
	if err != nil {
		return nil, fmt.Errorf("executor: capability resolution: %w", err)
	}

	// Step 3: state snapshot = stateOverride ?? persisted(planId) ?? {}.
	var seed *runtimeplan.StateSnapshot
	switch {
	case req.StateOverride != nil:
		seed = req.StateOverride
	case rt.Store != nil:
		if snap, ok, loadErr := rt.Store.Load(ctx, req.Plan.ID); loadErr == nil && ok {
			seed = &snap
		}
	}
	machine := statemachine.New(req.Plan.ID, seed)
	if req.Plan.State != nil {
		machine.SeedInitial(req.Plan.State.Initial)
	}

	// Step 4: apply transitions if an event names one.
	var appliedActions []runtimeplan.Action
	if req.Event != nil && req.Plan.State != nil {
		applied, err := machine.Apply(req.Plan.State, *req.Event)
		if err != nil {
			return nil, fmt.Errorf("executor: applying event: %w", err)
		}
		appliedActions = applied
	}

	var diagnostics []runtimeplan.Diagnostic
	deadline := renderDeadline(caps.MaxRenderBudget)

	// Step 5: dependency preflight — probe every specifier the plan will
	// need (declared imports, component specifiers, source imports) before
	// the real walk reaches it.
	manifestIdx := manifestIndex(req.Plan.Manifest)
	var resolver preflight.Resolver
	if rt.Loader != nil {
		resolver = &loaderResolver{loader: rt.Loader, manifest: manifestIdx}
	}
	probes := preflight.Collect(req.Plan)
	preflightDiags := preflight.Run(ctx, probes, resolver, deadline)
	diagnostics = append(diagnostics, preflightDiags...)
	for _, d := range preflightDiags {
		rt.logDiagnostic(d)
	}
	if rt.FailOnPreflightError && preflight.HasFatal(preflightDiags) {
		newSnapshot := machine.Snapshot()
		return &runtimeplan.ExecutionResult{
			PlanID:         req.Plan.ID,
			Rendered:       req.Plan.Root,
			Diagnostics:    diagnostics,
			State:          newSnapshot,
			AppliedActions: appliedActions,
		}, nil
	}

	// Steps 6/7: pick the root to render — transpile plan.Source to ESM and
	// run it through the sandbox dispatcher if present, falling back to
	// plan.Root on failure when FailClosed is set, else walk plan.Root
	// directly.
	root := req.Plan.Root
	if req.Plan.Source != "" {
		esm, terr := rt.Transpiler.Transpile(ctx, transpiler.Input{
			Code:     req.Plan.Source,
			Language: defaultSourceLang(req.Plan.SourceLang),
			Runtime:  req.Plan.SourceRuntime,
		})
		if terr == nil {
			node, sandboxDiags, serr := rt.Dispatcher.ExecuteSource(ctx, grant, sandbox.ExecuteRequest{
				ESM:                      esm,
				SourceRuntime:            req.Plan.SourceRuntime,
				ExplicitSandboxRequested: req.Plan.Capabilities.SandboxMode != "",
				FailClosed:               caps.SandboxFailClosed,
			})
			diagnostics = append(diagnostics, sandboxDiags...)
			for _, d := range sandboxDiags {
				rt.logDiagnostic(d)
			}
			if serr == nil {
				root = node
			} else {
				terr = serr
			}
		}
		if terr != nil {
			switch {
			case req.Plan.FailClosed:
				d := runtimeplan.Diagnostic{
					Severity: runtimeplan.DiagnosticSeverityWarn,
					Code:     runtimeplan.CodeSourceSandboxFailed,
					Phase:    "transpile",
					Message:  fmt.Sprintf("transpile/sandbox failed, keeping last-known-good root: %v", terr),
				}
				diagnostics = append(diagnostics, d)
				rt.logDiagnostic(d)
			default:
				return nil, fmt.Errorf("executor: transpile/sandbox: %w", terr)
			}
		}
	}

	var eventPayload map[string]any
	if req.Event != nil {
		eventPayload = req.Event.Payload
	}
	rc := &renderCtx{
		runtime:      rt,
		machine:      machine,
		grant:        grant,
		caps:         caps,
		deadline:     deadline,
		manifest:     manifestIdx,
		context:      req.Context,
		eventPayload: eventPayload,
	}

	// Steps 8/9: walk and render, then persist the resulting state.
	rendered := rc.render(ctx, root)
	diagnostics = append(diagnostics, rc.diagnostics...)

	for _, d := range rc.diagnostics {
		rt.logDiagnostic(d)
	}

	newSnapshot := machine.Snapshot()
	if rt.Store != nil {
		if err := rt.Store.Save(ctx, newSnapshot); err != nil {
			d := runtimeplan.Diagnostic{
				Severity: runtimeplan.DiagnosticSeverityWarn,
				Phase:    "persist",
				Message:  fmt.Sprintf("failed to persist state snapshot: %v", err),
			}
			diagnostics = append(diagnostics, d)
			rt.logDiagnostic(d)
		}
	}

	result := &runtimeplan.ExecutionResult{
		PlanID:         req.Plan.ID,
		Rendered:       rendered,
		Diagnostics:    diagnostics,
		State:          newSnapshot,
		AppliedActions: appliedActions,
	}

	if rt.Artifacts != nil {
		if blob, err := json.Marshal(result); err == nil {
			if err := rt.Artifacts.Put(ctx, req.Plan.ID, "result.json", blob); err != nil && rt.Logger != nil {
				rt.Logger.Warn("[persist] failed to write result artifact: %v", err)
			}
		}
	}

	return result, nil
}

func mergeCapabilities(plan, defaults runtimeplan.Capabilities) runtimeplan.Capabilities {
	out := plan
	if out.SandboxMode == "" {
		out.SandboxMode = defaults.SandboxMode
	}
	if out.MaxModules == 0 {
		out.MaxModules = defaults.MaxModules
	}
	if out.MaxRenderBudget == 0 {
		out.MaxRenderBudget = defaults.MaxRenderBudget
	}
	if out.MaxTemplateDepth == 0 {
		out.MaxTemplateDepth = defaults.MaxTemplateDepth
	}
	if len(out.AllowedOrigins) == 0 {
		out.AllowedOrigins = defaults.AllowedOrigins
	}
	return out
}

func renderDeadline(budget time.Duration) time.Time {
	if budget <= 0 {
		return time.Time{}
	}
	return time.Now().Add(budget)
}

// defaultSourceLang fills in "jsx" when a plan doesn't declare
// sourceLanguage — every plan.Source fixture predating that field was bare
// JSX, and jsx remains the common case for author-authored component
// bodies.
func defaultSourceLang(lang string) string {
	if lang == "" {
		return "jsx"
	}
	return lang
}

func manifestIndex(entries []runtimeplan.ManifestEntry) map[string]runtimeplan.ManifestEntry {
	idx := make(map[string]runtimeplan.ManifestEntry, len(entries))
	for _, e := range entries {
		idx[e.Specifier] = e
	}
	return idx
}
