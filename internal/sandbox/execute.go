package sandbox

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/webllm/renderify/internal/runtimeplan"
)

// IsBrowserHost reports whether the process has browser globals (Worker,
// document, ShadowRealm) available at all. This runtime is a Go server
// process, never a browser, so selection rule 2 ("if the host is not a
// browser runtime, sandbox=none") always applies here — ExecuteSource
// still carries the full worker/iframe/shadowrealm fallback chain so a
// future browser-hosted build of this package (compiled to wasm, with real
// Host values wired in) exercises the same code path instead of a
// parallel one.
var IsBrowserHost = false

// Host runs a transpiled ESM module under one sandbox kind and returns the
// rendered Node. Dispatcher's Worker/IFrame/ShadowRealm fields hold a Host
// each, left nil by this backend: there is no global Worker, no document,
// no ShadowRealm to back them, so every ExecuteSource call falls through to
// noneHost, a real interpreter rather than a stand-in for the other three.
type Host interface {
	Run(ctx context.Context, esm string, input map[string]any) (*runtimeplan.Node, error)
}

// sandboxOrder is the fixed fallback sequence spec'd for when a selected
// mode's host is unavailable at runtime.
var sandboxOrder = []Mode{ModeWorker, ModeIFrame, ModeShadowRealm, ModeNone}

func modeIndex(mode Mode) int {
	for i, m := range sandboxOrder {
		if m == mode {
			return i
		}
	}
	return len(sandboxOrder) - 1
}

func (d *Dispatcher) hostFor(mode Mode) Host {
	switch mode {
	case ModeWorker:
		return d.Worker
	case ModeIFrame:
		return d.IFrame
	case ModeShadowRealm:
		return d.ShadowRealm
	default:
		return nil
	}
}

// ExecuteRequest bundles ExecuteSource's inputs beyond the resolved Grant.
type ExecuteRequest struct {
	// ESM is the transpiled module source to run.
	ESM string
	// Input is the structured render input passed to the module's export.
	Input map[string]any
	// SourceRuntime is the plan's declared source.runtime. "preact" paired
	// with an explicit sandbox request is a fatal configuration error
	// (rule 3).
	SourceRuntime string
	// ExplicitSandboxRequested is true when the plan itself named a
	// sandbox mode, as opposed to falling back to the executor's default.
	ExplicitSandboxRequested bool
	// FailClosed suppresses fallback to "none" when every other mode's
	// host is unavailable (browserSourceSandboxFailClosed).
	FailClosed bool
}

// ExecuteSource runs req.ESM under grant.Mode, falling through
// worker -> iframe -> shadowrealm -> none until a Host is available, per
// spec's fixed fallback order. On a non-browser host (IsBrowserHost is
// false, always true for this backend) selection starts directly at
// "none", matching rule 2 rather than discovering unavailability through
// the loop.
func (d *Dispatcher) ExecuteSource(ctx context.Context, grant Grant, req ExecuteRequest) (*runtimeplan.Node, []runtimeplan.Diagnostic, error) {
	if req.SourceRuntime == "preact" && req.ExplicitSandboxRequested {
		return nil, nil, fmt.Errorf("sandbox: explicit sandbox mode is unsupported for source.runtime=preact")
	}

	start := grant.Mode
	if !IsBrowserHost {
		start = ModeNone
	}

	for i := modeIndex(start); i < len(sandboxOrder); i++ {
		mode := sandboxOrder[i]
		if mode == ModeNone {
			if req.FailClosed {
				return d.failClosedResult()
			}
			node, err := noneHost{}.Run(ctx, req.ESM, req.Input)
			if err != nil {
				return d.execFailedResult(ModeNone, err)
			}
			return node, []runtimeplan.Diagnostic{sandboxExecutedDiag(ModeNone)}, nil
		}

		host := d.hostFor(mode)
		if host == nil {
			continue
		}
		node, err := host.Run(ctx, req.ESM, req.Input)
		if err != nil {
			return d.execFailedResult(mode, err)
		}
		return node, []runtimeplan.Diagnostic{sandboxExecutedDiag(mode)}, nil
	}

	return d.failClosedResult()
}

func sandboxExecutedDiag(mode Mode) runtimeplan.Diagnostic {
	return runtimeplan.Diagnostic{
		Severity: runtimeplan.DiagnosticSeverityInfo,
		Code:     runtimeplan.CodeSourceSandboxExecuted,
		Phase:    "sandbox",
		Message:  fmt.Sprintf("executed via %s sandbox", mode),
	}
}

func (d *Dispatcher) execFailedResult(mode Mode, cause error) (*runtimeplan.Node, []runtimeplan.Diagnostic, error) {
	diags := []runtimeplan.Diagnostic{
		{
			Severity: runtimeplan.DiagnosticSeverityError,
			Code:     runtimeplan.CodeSourceSandboxFailed,
			Phase:    "sandbox",
			Message:  fmt.Sprintf("%s sandbox failed: %v", mode, cause),
		},
		{
			Severity: runtimeplan.DiagnosticSeverityError,
			Code:     runtimeplan.CodeSourceExecFailed,
			Phase:    "sandbox",
			Message:  cause.Error(),
		},
	}
	return nil, diags, cause
}

func (d *Dispatcher) failClosedResult() (*runtimeplan.Node, []runtimeplan.Diagnostic, error) {
	err := fmt.Errorf("sandbox: no sandbox host available and fallback to none is suppressed")
	return d.execFailedResult(ModeNone, err)
}

// noneHost interprets the ESM text directly: it parses the post-transpile
// call-expression syntax with the javascript grammar and walks
// __renderify_runtime_h/__renderify_runtime_fragment (classic) or
// _jsx/_jsxs (automatic) calls back into a Node tree. This is the genuine
// "none" sandbox kind (direct import of a data URL in a browser), done on
// a Go server by interpreting rather than executing the module.
type noneHost struct{}

func (noneHost) Run(ctx context.Context, esm string, _ map[string]any) (*runtimeplan.Node, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, []byte(esm))
	if err != nil {
		return nil, fmt.Errorf("sandbox: parsing module: %w", err)
	}
	defer tree.Close()

	source := []byte(esm)
	call := findFactoryCall(tree.RootNode(), source)
	if call == nil {
		return nil, fmt.Errorf("sandbox: no renderable expression found in module")
	}

	gen := &idGen{}
	return interpretCall(call, source, gen)
}

var factoryNames = map[string]bool{
	"__renderify_runtime_h":        true,
	"__renderify_runtime_fragment": true,
	"_jsx":                         true,
	"_jsxs":                        true,
}

func findFactoryCall(n *sitter.Node, source []byte) *sitter.Node {
	if n == nil {
		return nil
	}
	if n.Type() == "call_expression" {
		fn := n.ChildByFieldName("function")
		if fn != nil && factoryNames[fn.Content(source)] {
			return n
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := findFactoryCall(n.Child(i), source); found != nil {
			return found
		}
	}
	return nil
}

type idGen struct{ n int }

func (g *idGen) next() string {
	g.n++
	return fmt.Sprintf("sandbox-%d", g.n)
}

func namedArgs(call *sitter.Node) []*sitter.Node {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, args.NamedChildCount())
	for i := 0; i < int(args.NamedChildCount()); i++ {
		out = append(out, args.NamedChild(i))
	}
	return out
}

func interpretCall(call *sitter.Node, source []byte, gen *idGen) (*runtimeplan.Node, error) {
	fn := call.ChildByFieldName("function")
	args := namedArgs(call)
	if fn == nil || len(args) == 0 {
		return nil, fmt.Errorf("sandbox: malformed factory call")
	}

	switch fn.Content(source) {
	case "__renderify_runtime_h":
		tag := unquote(args[0].Content(source))
		props := objectLiteralProps(args[1], source)
		var children []*runtimeplan.Node
		for _, a := range args[2:] {
			child, err := interpretArg(a, source, gen)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return buildNode(tag, props, children, gen), nil

	case "__renderify_runtime_fragment":
		var children []*runtimeplan.Node
		for _, a := range args[1:] {
			child, err := interpretArg(a, source, gen)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return buildNode("fragment", nil, children, gen), nil

	case "_jsx", "_jsxs":
		if len(args) < 2 {
			return nil, fmt.Errorf("sandbox: malformed automatic-runtime call")
		}
		tag := "fragment"
		if !(args[0].Type() == "identifier" && args[0].Content(source) == "_Fragment") {
			tag = unquote(args[0].Content(source))
		}
		props, children, err := automaticPropsAndChildren(args[1], source, gen)
		if err != nil {
			return nil, err
		}
		return buildNode(tag, props, children, gen), nil

	default:
		return nil, fmt.Errorf("sandbox: unrecognized factory call %q", fn.Content(source))
	}
}

// interpretArg turns one child argument expression into a Node: a string
// literal becomes a text leaf, a nested factory call recurses, and any
// other expression becomes a template placeholder evaluated later by
// internal/template (the same `{{expr}}` convention JSX expression
// children used before compilation).
func interpretArg(n *sitter.Node, source []byte, gen *idGen) (*runtimeplan.Node, error) {
	switch n.Type() {
	case "string":
		return &runtimeplan.Node{
			ID:   gen.next(),
			Type: runtimeplan.NodeTypeText,
			Text: &runtimeplan.TextNode{Value: unquote(n.Content(source))},
		}, nil
	case "call_expression":
		fn := n.ChildByFieldName("function")
		if fn != nil && factoryNames[fn.Content(source)] {
			return interpretCall(n, source, gen)
		}
	}
	return &runtimeplan.Node{
		ID:   gen.next(),
		Type: runtimeplan.NodeTypeText,
		Text: &runtimeplan.TextNode{Value: "{{" + strings.TrimSpace(n.Content(source)) + "}}"},
	}, nil
}

func buildNode(tag string, attrs map[string]string, children []*runtimeplan.Node, gen *idGen) *runtimeplan.Node {
	if tag == "fragment" || isComponentName(tag) {
		if tag == "fragment" {
			return &runtimeplan.Node{
				ID:   gen.next(),
				Type: runtimeplan.NodeTypeElement,
				Element: &runtimeplan.ElementNode{
					Tag:      "fragment",
					Children: children,
				},
			}
		}
		props := make(map[string]any, len(attrs))
		for k, v := range attrs {
			props[k] = v
		}
		return &runtimeplan.Node{
			ID:   gen.next(),
			Type: runtimeplan.NodeTypeComponent,
			Component: &runtimeplan.ComponentNode{
				Specifier: tag,
				Props:     props,
				Children:  children,
			},
		}
	}
	return &runtimeplan.Node{
		ID:   gen.next(),
		Type: runtimeplan.NodeTypeElement,
		Element: &runtimeplan.ElementNode{
			Tag:      tag,
			Attrs:    attrs,
			Children: children,
		},
	}
}

// isComponentName applies the same PascalCase/namespaced heuristic the
// transpiler uses to tell a component reference from a built-in element
// name: an uppercase first rune, or a specifier carrying a package path
// or alias separator.
func isComponentName(name string) bool {
	if name == "" {
		return false
	}
	if r := name[0]; r >= 'A' && r <= 'Z' {
		return true
	}
	return strings.ContainsAny(name, ":./")
}

func objectLiteralProps(n *sitter.Node, source []byte) map[string]string {
	if n == nil || n.Type() != "object" {
		return nil
	}
	props := map[string]string{}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		pair := n.NamedChild(i)
		if pair.Type() != "pair" {
			continue
		}
		key := pair.ChildByFieldName("key")
		value := pair.ChildByFieldName("value")
		if key == nil || value == nil {
			continue
		}
		k := unquote(key.Content(source))
		if k == "children" {
			continue
		}
		props[k] = literalText(value, source)
	}
	return props
}

// automaticPropsAndChildren splits an automatic-runtime props object into
// its non-children attributes and its "children" value, which is either a
// single expression or an array literal of them.
func automaticPropsAndChildren(n *sitter.Node, source []byte, gen *idGen) (map[string]string, []*runtimeplan.Node, error) {
	props := objectLiteralProps(n, source)
	if n == nil || n.Type() != "object" {
		return props, nil, nil
	}
	var children []*runtimeplan.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		pair := n.NamedChild(i)
		if pair.Type() != "pair" {
			continue
		}
		key := pair.ChildByFieldName("key")
		value := pair.ChildByFieldName("value")
		if key == nil || value == nil || unquote(key.Content(source)) != "children" {
			continue
		}
		if value.Type() == "array" {
			for j := 0; j < int(value.NamedChildCount()); j++ {
				child, err := interpretArg(value.NamedChild(j), source, gen)
				if err != nil {
					return nil, nil, err
				}
				children = append(children, child)
			}
			continue
		}
		child, err := interpretArg(value, source, gen)
		if err != nil {
			return nil, nil, err
		}
		children = append(children, child)
	}
	return props, children, nil
}

func literalText(n *sitter.Node, source []byte) string {
	if n.Type() == "string" {
		return unquote(n.Content(source))
	}
	return n.Content(source)
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
