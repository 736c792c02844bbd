package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/webllm/renderify/internal/runtimeplan"
	"github.com/webllm/renderify/internal/sandbox"
	"github.com/webllm/renderify/internal/statemachine"
	"github.com/webllm/renderify/internal/template"
	"github.com/webllm/renderify/internal/transpiler"
)

// renderCtx carries everything the tree walk needs but that Execute itself
// doesn't: the resolved grant, budget deadline, and accumulated
// diagnostics/module count, so render stays a pure function of (ctx, node).
type renderCtx struct {
	runtime     *Runtime
	machine     *statemachine.Machine
	grant       sandbox.Grant
	caps        runtimeplan.Capabilities
	deadline    time.Time
	manifest     map[string]runtimeplan.ManifestEntry
	context      map[string]any
	eventPayload map[string]any
	diagnostics  []runtimeplan.Diagnostic
	modulesUsed  int
}

func (rc *renderCtx) warn(phase, nodeID, msg string) {
	rc.warnCode(phase, nodeID, "", msg)
}

func (rc *renderCtx) warnCode(phase, nodeID, code, msg string) {
	rc.diagnostics = append(rc.diagnostics, runtimeplan.Diagnostic{
		Severity: runtimeplan.DiagnosticSeverityWarn,
		Code:     code,
		Phase:    phase,
		NodeID:   nodeID,
		Message:  msg,
	})
}

func (rc *renderCtx) budgetExceeded() bool {
	return !rc.deadline.IsZero() && time.Now().After(rc.deadline)
}

// render walks node, resolving component specifiers, interpolating
// templates, and enforcing capability limits. Budget or capability
// violations downgrade the offending node to a diagnostic-only text node or
// omit it entirely (returning nil) rather than aborting the whole walk,
// matching spec step 8.
func (rc *renderCtx) render(ctx context.Context, node *runtimeplan.Node) *runtimeplan.Node {
	if node == nil {
		return nil
	}
	if ctx.Err() != nil {
		rc.warnCode("render", node.ID, runtimeplan.CodeAborted, "render aborted by caller, node omitted")
		return nil
	}
	if rc.budgetExceeded() {
		rc.warnCode("render", node.ID, runtimeplan.CodeTimeout, "render budget exhausted, node omitted")
		return nil
	}

	switch node.Type {
	case runtimeplan.NodeTypeText:
		return rc.renderText(node)
	case runtimeplan.NodeTypeElement:
		return rc.renderElement(ctx, node)
	case runtimeplan.NodeTypeComponent:
		return rc.renderComponent(ctx, node)
	default:
		rc.warn("render", node.ID, fmt.Sprintf("unknown node type %q, omitted", node.Type))
		return nil
	}
}

func (rc *renderCtx) scopeFor(nodeID string) template.Scope {
	return planScope{
		state:   rc.machine.Get(),
		event:   rc.eventPayload,
		context: rc.context,
	}
}

func (rc *renderCtx) interpolator(nodeID string) *template.Interpolator {
	return template.New(rc.scopeFor(nodeID), rc.caps.MaxTemplateDepth)
}

func (rc *renderCtx) renderText(node *runtimeplan.Node) *runtimeplan.Node {
	if node.Text == nil {
		return node
	}
	expanded, err := rc.interpolator(node.ID).Expand(node.Text.Value)
	if err != nil {
		rc.warnCode("template", node.ID, runtimeplan.CodeNodeInvalid, fmt.Sprintf("text interpolation failed: %v", err))
		expanded = node.Text.Value
	}
	return &runtimeplan.Node{
		ID:   node.ID,
		Type: runtimeplan.NodeTypeText,
		Text: &runtimeplan.TextNode{Value: expanded},
	}
}

func (rc *renderCtx) renderElement(ctx context.Context, node *runtimeplan.Node) *runtimeplan.Node {
	if node.Element == nil {
		return node
	}
	in := rc.interpolator(node.ID)
	attrs := make(map[string]string, len(node.Element.Attrs))
	for k, v := range node.Element.Attrs {
		expanded, err := in.Expand(v)
		if err != nil {
			rc.warn("template", node.ID, fmt.Sprintf("attribute %q interpolation failed: %v", k, err))
			expanded = v
		}
		attrs[k] = expanded
	}

	var children []*runtimeplan.Node
	for _, child := range node.Element.Children {
		if rendered := rc.render(ctx, child); rendered != nil {
			children = append(children, rendered)
		}
	}

	return &runtimeplan.Node{
		ID:   node.ID,
		Type: runtimeplan.NodeTypeElement,
		Element: &runtimeplan.ElementNode{
			Tag:      node.Element.Tag,
			Attrs:    attrs,
			Children: children,
		},
	}
}

func (rc *renderCtx) renderComponent(ctx context.Context, node *runtimeplan.Node) *runtimeplan.Node {
	if node.Component == nil {
		return node
	}

	if rc.modulesUsed >= rc.caps.MaxModules {
		rc.warnCode("sandbox", node.ID, runtimeplan.CodeImportLimitExceeded, "maxModules exceeded, component omitted")
		return nil
	}

	in := rc.interpolator(node.ID)
	props, _ := rc.resolveProps(node, in)

	var children []*runtimeplan.Node
	for _, child := range node.Component.Children {
		if rendered := rc.render(ctx, child); rendered != nil {
			children = append(children, rendered)
		}
	}

	entry, hasManifest := rc.manifest[node.Component.Specifier]
	if !hasManifest || rc.runtime.Loader == nil {
		// No module to materialize (or no loader configured): the
		// component is rendered as a reference node carrying its resolved
		// props, leaving actual export invocation to a host-side renderer
		// that owns the component catalogue (mirrors step 7's "invoking
		// the named export" happening outside the plan data model itself).
		return &runtimeplan.Node{
			ID:   node.ID,
			Type: runtimeplan.NodeTypeComponent,
			Component: &runtimeplan.ComponentNode{
				Specifier: node.Component.Specifier,
				Props:     props,
				Children:  children,
			},
		}
	}

	if err := rc.grant.CheckOrigin(entry.Specifier); err != nil && rc.caps.Network {
		rc.warnCode("sandbox", node.ID, runtimeplan.CodeNetworkPolicyBlocked, err.Error())
	}

	mod, err := rc.runtime.Loader.Resolve(ctx, entry)
	if err != nil {
		rc.warnCode("moduleloader", node.ID, runtimeplan.CodeLoaderMissing, fmt.Sprintf("resolving %q: %v", entry.Specifier, err))
		return rc.textFallback(node.ID, "")
	}
	rc.modulesUsed++

	if rc.runtime.Transpiler == nil || rc.runtime.Dispatcher == nil {
		rc.warnCode("transpile", node.ID, runtimeplan.CodeSourceExecFailed, "no transpiler/dispatcher configured, component omitted")
		return rc.textFallback(node.ID, "")
	}
	esm, err := rc.runtime.Transpiler.Transpile(ctx, transpiler.Input{
		Code:     string(mod.Source),
		Language: "jsx",
	})
	if err != nil {
		rc.warnCode("transpile", node.ID, runtimeplan.CodeSourceExecFailed, fmt.Sprintf("transpiling %q: %v, omitted with fallback export diagnostic", entry.Specifier, err))
		rc.diagnostics = append(rc.diagnostics, runtimeplan.Diagnostic{
			Severity: runtimeplan.DiagnosticSeverityInfo,
			Code:     runtimeplan.CodeSourceExportFallbackDefault,
			Phase:    "transpile",
			NodeID:   node.ID,
			Message:  "falling back to default export after transpile failure",
		})
		return rc.textFallback(node.ID, "")
	}

	transpiled, sandboxDiags, err := rc.runtime.Dispatcher.ExecuteSource(ctx, rc.grant, sandbox.ExecuteRequest{
		ESM:        esm,
		FailClosed: rc.caps.SandboxFailClosed,
	})
	for i := range sandboxDiags {
		sandboxDiags[i].NodeID = node.ID
	}
	rc.diagnostics = append(rc.diagnostics, sandboxDiags...)
	if err != nil {
		rc.diagnostics = append(rc.diagnostics, runtimeplan.Diagnostic{
			Severity: runtimeplan.DiagnosticSeverityInfo,
			Code:     runtimeplan.CodeSourceExportFallbackDefault,
			Phase:    "sandbox",
			NodeID:   node.ID,
			Message:  "falling back to default export after sandbox execution failure",
		})
		return rc.textFallback(node.ID, "")
	}

	rendered := rc.render(ctx, transpiled)
	if rendered == nil {
		return nil
	}
	if len(children) > 0 {
		rendered = graftChildren(rendered, children)
	}
	return rendered
}

// resolveProps expands every string prop through the template interpolator.
// A "requires" prop, if present, is split out rather than interpolated: it
// is a plan-authoring declaration, not a template value.
func (rc *renderCtx) resolveProps(node *runtimeplan.Node, in *template.Interpolator) (map[string]any, []string) {
	props := make(map[string]any, len(node.Component.Props))
	var requires []string
	for k, v := range node.Component.Props {
		if k == "requires" {
			if list, ok := v.([]string); ok {
				requires = list
			} else if list, ok := v.([]any); ok {
				for _, item := range list {
					if s, ok := item.(string); ok {
						requires = append(requires, s)
					}
				}
			}
			continue
		}
		if s, ok := v.(string); ok {
			expanded, err := in.Expand(s)
			if err != nil {
				rc.warn("template", node.ID, fmt.Sprintf("prop %q interpolation failed: %v", k, err))
				expanded = s
			}
			props[k] = expanded
			continue
		}
		props[k] = v
	}
	return props, requires
}

func (rc *renderCtx) textFallback(nodeID, value string) *runtimeplan.Node {
	return &runtimeplan.Node{
		ID:   nodeID,
		Type: runtimeplan.NodeTypeText,
		Text: &runtimeplan.TextNode{Value: value},
	}
}

// graftChildren attaches extra children onto rendered's existing slot,
// preserving whatever the transpiled module body already produced.
func graftChildren(rendered *runtimeplan.Node, extra []*runtimeplan.Node) *runtimeplan.Node {
	switch rendered.Type {
	case runtimeplan.NodeTypeElement:
		rendered.Element.Children = append(rendered.Element.Children, extra...)
	case runtimeplan.NodeTypeComponent:
		rendered.Component.Children = append(rendered.Component.Children, extra...)
	}
	return rendered
}
