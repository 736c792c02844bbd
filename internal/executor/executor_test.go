package executor

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/webllm/renderify/internal/artifactstore"
	"github.com/webllm/renderify/internal/moduleloader"
	"github.com/webllm/renderify/internal/rplog"
	"github.com/webllm/renderify/internal/runtimeplan"
	"github.com/webllm/renderify/internal/statemachine"
	"github.com/webllm/renderify/internal/transpiler"
)

type staticFetcher struct{ body []byte }

func (f *staticFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	return f.body, nil
}

func newTestLoader(t *testing.T, body string) *moduleloader.Loader {
	t.Helper()
	l, err := moduleloader.New(8, moduleloader.WithFetchers(&staticFetcher{body: []byte(body)}))
	if err != nil {
		t.Fatalf("unexpected error building loader: %v", err)
	}
	return l
}

func textTree(id, value string) *runtimeplan.Node {
	return &runtimeplan.Node{ID: id, Type: runtimeplan.NodeTypeText, Text: &runtimeplan.TextNode{Value: value}}
}

func TestExecute_InterpolatesStateAndContext(t *testing.T) {
	rt := NewRuntime(nil, transpiler.New())
	plan := &runtimeplan.RuntimePlan{
		ID: "plan-1",
		Root: &runtimeplan.Node{
			ID:   "root",
			Type: runtimeplan.NodeTypeElement,
			Element: &runtimeplan.ElementNode{
				Tag: "div",
				Children: []*runtimeplan.Node{
					textTree("greeting", "hello {{context.name}}, count={{count}}"),
				},
			},
		},
	}
	seed := runtimeplan.StateSnapshot{
		PlanID: "plan-1",
		State:  map[string]any{"count": 3},
	}
	result, err := rt.Execute(context.Background(), ExecuteRequest{
		Plan:          plan,
		Context:       map[string]any{"name": "world"},
		StateOverride: &seed,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := result.Rendered.Element.Children[0].Text.Value
	if got != "hello world, count=3" {
		t.Fatalf("unexpected interpolation: %q", got)
	}
}

func TestExecute_AbortsWhenContextAlreadyCancelled(t *testing.T) {
	rt := NewRuntime(nil, transpiler.New())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := rt.Execute(ctx, ExecuteRequest{Plan: &runtimeplan.RuntimePlan{ID: "p"}})
	if err == nil {
		t.Fatalf("expected abort error")
	}
}

func TestExecute_NeverMutatesInputPlan(t *testing.T) {
	rt := NewRuntime(nil, transpiler.New())
	original := textTree("only", "value is {{x}}")
	plan := &runtimeplan.RuntimePlan{ID: "plan-2", Root: original}
	seed := runtimeplan.StateSnapshot{PlanID: "plan-2", State: map[string]any{"x": 7}}
	if _, err := rt.Execute(context.Background(), ExecuteRequest{Plan: plan, StateOverride: &seed}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if original.Text.Value != "value is {{x}}" {
		t.Fatalf("expected plan.Root left untouched, got %q", original.Text.Value)
	}
}

func TestExecute_PersistsStateAcrossCalls(t *testing.T) {
	rt := NewRuntime(nil, transpiler.New())
	plan := &runtimeplan.RuntimePlan{
		ID:   "plan-3",
		Root: textTree("n1", "{{x}}"),
		State: &runtimeplan.PlanState{
			Transitions: map[string]runtimeplan.Transition{
				"set-x": {Actions: []runtimeplan.Action{
					{Verb: "set", Path: "x", Value: "first"},
				}},
			},
		},
	}

	event := statemachine.Event{Type: "set-x"}
	first, err := rt.Execute(context.Background(), ExecuteRequest{
		Plan:  plan,
		Event: &event,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first.AppliedActions) != 1 || first.AppliedActions[0].Path != "x" {
		t.Fatalf("expected appliedActions to record the set, got %+v", first.AppliedActions)
	}

	result, err := rt.Execute(context.Background(), ExecuteRequest{Plan: plan})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Rendered.Text.Value != "first" {
		t.Fatalf("expected persisted state to carry over, got %q", result.Rendered.Text.Value)
	}
}

func TestExecute_ComponentResolvesModuleAndTranspiles(t *testing.T) {
	loader := newTestLoader(t, `<span>widget body</span>`)
	rt := NewRuntime(loader, transpiler.New())
	plan := &runtimeplan.RuntimePlan{
		ID: "plan-4",
		Root: &runtimeplan.Node{
			ID:   "root",
			Type: runtimeplan.NodeTypeComponent,
			Component: &runtimeplan.ComponentNode{
				Specifier: "Widget",
				Props:     map[string]any{},
			},
		},
		Manifest: []runtimeplan.ManifestEntry{
			{Specifier: "Widget", Version: "1.0.0"},
		},
		Capabilities: runtimeplan.Capabilities{MaxModules: 4},
	}
	result, err := rt.Execute(context.Background(), ExecuteRequest{Plan: plan})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Rendered.Element == nil || result.Rendered.Element.Tag != "span" {
		t.Fatalf("expected resolved module's span element, got %+v", result.Rendered)
	}
}

func TestExecute_SourceTranspileFailureWithFailClosedKeepsRoot(t *testing.T) {
	rt := NewRuntime(nil, transpiler.New())
	plan := &runtimeplan.RuntimePlan{
		ID:         "plan-5",
		Root:       textTree("fallback", "kept"),
		Source:     `const notJSX = 1;`,
		FailClosed: true,
	}
	result, err := rt.Execute(context.Background(), ExecuteRequest{Plan: plan})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Rendered.Text.Value != "kept" {
		t.Fatalf("expected fallback root preserved, got %+v", result.Rendered)
	}
	foundWarn := false
	for _, d := range result.Diagnostics {
		if d.Phase == "transpile" {
			foundWarn = true
		}
	}
	if !foundWarn {
		t.Fatalf("expected a transpile diagnostic")
	}
}

func TestExecute_RenderBudgetExceededOmitsNodes(t *testing.T) {
	rt := NewRuntime(nil, transpiler.New())
	plan := &runtimeplan.RuntimePlan{
		ID:           "plan-6",
		Root:         textTree("n", "value"),
		Capabilities: runtimeplan.Capabilities{MaxRenderBudget: time.Nanosecond},
	}
	time.Sleep(time.Millisecond)
	result, err := rt.Execute(context.Background(), ExecuteRequest{Plan: plan})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Rendered != nil {
		t.Fatalf("expected root omitted once budget is exhausted, got %+v", result.Rendered)
	}
}

func TestExecute_LoggerReceivesDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	rt := NewRuntime(nil, transpiler.New())
	rt.Logger = rplog.New("executor", log.New(&buf, "", 0))

	plan := &runtimeplan.RuntimePlan{
		ID:         "plan-7",
		Root:       textTree("fallback", "kept"),
		Source:     `const notJSX = 1;`,
		FailClosed: true,
	}
	if _, err := rt.Execute(context.Background(), ExecuteRequest{Plan: plan}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "transpile") {
		t.Fatalf("expected logger to receive the transpile diagnostic, got %q", buf.String())
	}
}

func TestExecute_ArtifactsReceivesResultSnapshot(t *testing.T) {
	origin := artifactstore.NewDiskStore(t.TempDir())
	rt := NewRuntime(nil, transpiler.New())
	rt.Artifacts = origin

	plan := &runtimeplan.RuntimePlan{ID: "plan-8", Root: textTree("n", "hi")}
	if _, err := rt.Execute(context.Background(), ExecuteRequest{Plan: plan}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	blob, err := origin.Get(context.Background(), "plan-8", "result.json")
	if err != nil {
		t.Fatalf("expected result artifact to be persisted: %v", err)
	}
	if !bytes.Contains(blob, []byte(`"hi"`)) {
		t.Fatalf("expected persisted artifact to contain rendered text, got %s", blob)
	}
}
