package preflight

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/webllm/renderify/internal/runtimeplan"
)

func planWith(imports []string, root *runtimeplan.Node, source string) *runtimeplan.RuntimePlan {
	return &runtimeplan.RuntimePlan{ID: "p1", Imports: imports, Root: root, Source: source}
}

func componentNode(id, specifier string) *runtimeplan.Node {
	return &runtimeplan.Node{
		ID:        id,
		Type:      runtimeplan.NodeTypeComponent,
		Component: &runtimeplan.ComponentNode{Specifier: specifier},
	}
}

func TestCollect_UnionsImportsComponentsAndSourceImports(t *testing.T) {
	root := componentNode("n1", "Widget")
	plan := planWith([]string{"lodash"}, root, `import React from "react";`)

	probes := Sorted(Collect(plan))
	if len(probes) != 3 {
		t.Fatalf("expected 3 probes, got %d: %+v", len(probes), probes)
	}
	want := []Probe{
		{Usage: UsageComponent, Specifier: "Widget"},
		{Usage: UsageImport, Specifier: "lodash"},
		{Usage: UsageSourceImport, Specifier: "react"},
	}
	for i, w := range want {
		if probes[i] != w {
			t.Fatalf("probe %d: expected %+v, got %+v", i, w, probes[i])
		}
	}
}

func TestCollect_DeduplicatesByUsageAndSpecifier(t *testing.T) {
	root := componentNode("n1", "lodash")
	plan := planWith([]string{"lodash"}, root, "")

	probes := Collect(plan)
	if len(probes) != 2 {
		t.Fatalf("expected 2 probes (same specifier, different usage), got %d: %+v", len(probes), probes)
	}

	plan2 := planWith([]string{"lodash", "lodash"}, nil, "")
	probes2 := Collect(plan2)
	if len(probes2) != 1 {
		t.Fatalf("expected repeated import to collapse to 1 probe, got %d", len(probes2))
	}
}

func TestCollect_NilPlanReturnsNil(t *testing.T) {
	if got := Collect(nil); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

type fakeResolver struct {
	fail map[string]bool
}

func (r *fakeResolver) Probe(_ context.Context, specifier string) error {
	if r.fail[specifier] {
		return errors.New("boom")
	}
	return nil
}

func TestRun_EmptyProbesYieldsSkipped(t *testing.T) {
	diags := Run(context.Background(), nil, &fakeResolver{}, time.Time{})
	if len(diags) != 1 || diags[0].Code != runtimeplan.CodePreflightSkipped {
		t.Fatalf("expected single skipped diagnostic, got %+v", diags)
	}
}

func TestRun_NilResolverYieldsSkipped(t *testing.T) {
	diags := Run(context.Background(), []Probe{{Usage: UsageImport, Specifier: "react"}}, nil, time.Time{})
	if len(diags) != 1 || diags[0].Code != runtimeplan.CodePreflightSkipped {
		t.Fatalf("expected single skipped diagnostic, got %+v", diags)
	}
}

func TestRun_FailedProbeRaisesWarnDiagnosticWithUsageCode(t *testing.T) {
	probes := []Probe{
		{Usage: UsageImport, Specifier: "good"},
		{Usage: UsageComponent, Specifier: "bad-component"},
		{Usage: UsageSourceImport, Specifier: "bad-source"},
	}
	resolver := &fakeResolver{fail: map[string]bool{"bad-component": true, "bad-source": true}}
	diags := Run(context.Background(), probes, resolver, time.Time{})
	if len(diags) != 2 {
		t.Fatalf("expected 2 diagnostics for 2 failures, got %d: %+v", len(diags), diags)
	}
	if diags[0].Severity != runtimeplan.DiagnosticSeverityWarn || diags[0].Code != runtimeplan.CodePreflightComponentFailed {
		t.Fatalf("expected component-failed warning, got %+v", diags[0])
	}
	if diags[1].Code != runtimeplan.CodePreflightSourceImportFailed {
		t.Fatalf("expected source-import-failed warning, got %+v", diags[1])
	}
}

func TestRun_AbortedContextStopsBeforeNextProbe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	probes := []Probe{{Usage: UsageImport, Specifier: "react"}}
	diags := Run(ctx, probes, &fakeResolver{}, time.Time{})
	if len(diags) != 1 || diags[0].Code != runtimeplan.CodeAborted {
		t.Fatalf("expected single aborted diagnostic, got %+v", diags)
	}
}

func TestRun_ExpiredDeadlineStopsBeforeNextProbe(t *testing.T) {
	probes := []Probe{{Usage: UsageImport, Specifier: "react"}}
	diags := Run(context.Background(), probes, &fakeResolver{}, time.Now().Add(-time.Second))
	if len(diags) != 1 || diags[0].Code != runtimeplan.CodeTimeout {
		t.Fatalf("expected single timeout diagnostic, got %+v", diags)
	}
}

func TestHasFatal(t *testing.T) {
	warnOnly := []runtimeplan.Diagnostic{{Severity: runtimeplan.DiagnosticSeverityWarn}}
	if HasFatal(warnOnly) {
		t.Fatalf("expected warn-only diagnostics to not be fatal")
	}
	withError := append(warnOnly, runtimeplan.Diagnostic{Severity: runtimeplan.DiagnosticSeverityError})
	if !HasFatal(withError) {
		t.Fatalf("expected error diagnostic to be fatal")
	}
}
