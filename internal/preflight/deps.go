// Package preflight implements the dry-run dependency pass spec §4.8
// describes: before a plan's real render walk, every specifier the plan
// will eventually need gets probed once — union of declared plan.imports,
// component-module specifiers found by traversing root, and specifiers
// parsed from author source — so a missing or blocked dependency surfaces
// as a diagnostic before the walk ever reaches it.
package preflight

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/webllm/renderify/internal/runtimeplan"
)

// Usage tags which part of the plan a probed specifier was found in.
type Usage string

const (
	UsageImport       Usage = "import"
	UsageComponent    Usage = "component"
	UsageSourceImport Usage = "source-import"
)

// Probe is one specifier the dry-run pass checks, paired with where it came
// from.
type Probe struct {
	Usage     Usage
	Specifier string
}

var importSpecifierRe = regexp.MustCompile(`(?:import\s+(?:[\w*{}\s,]+\s+from\s+)?|export\s+[\w*{}\s,]+\s+from\s+|require\()\s*['"]([^'"]+)['"]`)

// Collect gathers probes by union over plan.Imports, every component node's
// specifier found by traversing plan.Root, and every bare import specifier
// parsed out of plan.Source, deduplicated by (usage, specifier) — "for all
// probe sets, collect(plan) is duplicate-free under (usage, specifier)".
func Collect(plan *runtimeplan.RuntimePlan) []Probe {
	if plan == nil {
		return nil
	}
	seen := map[[2]string]bool{}
	var out []Probe
	add := func(usage Usage, specifier string) {
		specifier = strings.TrimSpace(specifier)
		if specifier == "" {
			return
		}
		key := [2]string{string(usage), specifier}
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, Probe{Usage: usage, Specifier: specifier})
	}

	for _, imp := range plan.Imports {
		add(UsageImport, imp)
	}
	if plan.Root != nil {
		plan.Root.Walk(func(n *runtimeplan.Node) bool {
			if n.Type == runtimeplan.NodeTypeComponent && n.Component != nil {
				add(UsageComponent, n.Component.Specifier)
			}
			return true
		})
	}
	if plan.Source != "" {
		for _, m := range importSpecifierRe.FindAllStringSubmatch(plan.Source, -1) {
			add(UsageSourceImport, m[1])
		}
	}
	return out
}

// Resolver attempts to establish that specifier is loadable, without
// necessarily materializing it. The executor adapts moduleloader.Loader
// into this interface over the plan's manifest.
type Resolver interface {
	Probe(ctx context.Context, specifier string) error
}

func codeForUsage(u Usage) string {
	switch u {
	case UsageImport:
		return runtimeplan.CodePreflightImportFailed
	case UsageSourceImport:
		return runtimeplan.CodePreflightSourceImportFailed
	default:
		return runtimeplan.CodePreflightComponentFailed
	}
}

// Run iterates probes in declaration order — "preflight probes execute in
// declaration order" — checking ctx.Err() and the deadline before each one.
// Either condition aborts the pass immediately with a single stable
// diagnostic (RUNTIME_ABORTED or RUNTIME_TIMEOUT) covering the probes left
// unchecked; it never partially probes past an abort. A nil resolver, or an
// empty probe set, short-circuits to RUNTIME_PREFLIGHT_SKIPPED: nothing was
// loadable to probe in the first place.
func Run(ctx context.Context, probes []Probe, resolver Resolver, deadline time.Time) []runtimeplan.Diagnostic {
	if len(probes) == 0 {
		return []runtimeplan.Diagnostic{{
			Severity: runtimeplan.DiagnosticSeverityInfo,
			Code:     runtimeplan.CodePreflightSkipped,
			Phase:    "preflight",
			Message:  "no dependency probes to check",
		}}
	}
	if resolver == nil {
		return []runtimeplan.Diagnostic{{
			Severity: runtimeplan.DiagnosticSeverityInfo,
			Code:     runtimeplan.CodePreflightSkipped,
			Phase:    "preflight",
			Message:  "no loader configured, skipping dependency preflight",
		}}
	}

	var diags []runtimeplan.Diagnostic
	for _, p := range probes {
		if ctx.Err() != nil {
			diags = append(diags, runtimeplan.Diagnostic{
				Severity: runtimeplan.DiagnosticSeverityError,
				Code:     runtimeplan.CodeAborted,
				Phase:    "preflight",
				Message:  fmt.Sprintf("aborted before probing %q", p.Specifier),
			})
			return diags
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			diags = append(diags, runtimeplan.Diagnostic{
				Severity: runtimeplan.DiagnosticSeverityError,
				Code:     runtimeplan.CodeTimeout,
				Phase:    "preflight",
				Message:  fmt.Sprintf("budget exhausted before probing %q", p.Specifier),
			})
			return diags
		}
		if err := resolver.Probe(ctx, p.Specifier); err != nil {
			diags = append(diags, runtimeplan.Diagnostic{
				Severity: runtimeplan.DiagnosticSeverityWarn,
				Code:     codeForUsage(p.Usage),
				Phase:    "preflight",
				Message:  fmt.Sprintf("%s %q: %v", p.Usage, p.Specifier, err),
			})
		}
	}
	return diags
}

// HasFatal reports whether diags contains an error-severity entry — the
// signal failOnDependencyPreflightError short-circuits on.
func HasFatal(diags []runtimeplan.Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == runtimeplan.DiagnosticSeverityError {
			return true
		}
	}
	return false
}

// Sorted returns probes ordered by (usage, specifier), used only by tests
// that assert dedup without depending on traversal order.
func Sorted(probes []Probe) []Probe {
	out := make([]Probe, len(probes))
	copy(out, probes)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Usage != out[j].Usage {
			return out[i].Usage < out[j].Usage
		}
		return out[i].Specifier < out[j].Specifier
	})
	return out
}
