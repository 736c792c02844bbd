package moduleloader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/webllm/renderify/internal/runtimeplan"
)

// AutopinConfig bounds the best-effort version-resolution pass spec §4.5
// describes: probe every unpinned bare specifier against the CDN, fill in
// moduleManifest, and stop once too many probes have failed.
type AutopinConfig struct {
	CDNBase                 string
	MaxConcurrentResolutions int
	MaxFailedResolutions     int
	Client                   *http.Client
}

// DefaultAutopinConfig keeps autopin concurrency bounded and small by
// default.
func DefaultAutopinConfig() AutopinConfig {
	return AutopinConfig{
		CDNBase:                  defaultCDNBase,
		MaxConcurrentResolutions: 4,
		MaxFailedResolutions:     3,
		Client:                   &http.Client{Timeout: 10 * time.Second},
	}
}

var importSpecifierRe = regexp.MustCompile(`(?:import\s+(?:[\w*{}\s,]+\s+from\s+)?|export\s+[\w*{}\s,]+\s+from\s+|require\()\s*['"]([^'"]+)['"]`)

// CollectImportSpecifiers unions plan.Imports with every component node
// specifier reachable from root and every bare specifier parsed out of
// source, the same probe universe internal/preflight collects over — "every
// bare import specifier found in plan.imports, component nodes, and author
// source."
func CollectImportSpecifiers(plan *runtimeplan.RuntimePlan) []string {
	seen := map[string]bool{}
	var out []string
	add := func(spec string) {
		spec = strings.TrimSpace(spec)
		if spec == "" || seen[spec] {
			return
		}
		seen[spec] = true
		out = append(out, spec)
	}
	for _, imp := range plan.Imports {
		add(imp)
	}
	if plan.Root != nil {
		plan.Root.Walk(func(n *runtimeplan.Node) bool {
			if n.Type == runtimeplan.NodeTypeComponent && n.Component != nil {
				add(n.Component.Specifier)
			}
			return true
		})
	}
	if plan.Source != "" {
		for _, m := range importSpecifierRe.FindAllStringSubmatch(plan.Source, -1) {
			add(m[1])
		}
	}
	return out
}

// Autopin fills plan.Manifest with a resolved version/URL for every bare
// specifier CollectImportSpecifiers surfaces that has no existing manifest
// entry. Existing entries are never overwritten — running Autopin twice on
// an already-pinned plan is a no-op, satisfying the "running it twice
// produces the same manifest" fixed-point property. Returns the entries
// added (not the whole manifest) and any diagnostics raised.
func Autopin(ctx context.Context, plan *runtimeplan.RuntimePlan, cfg AutopinConfig) ([]runtimeplan.ManifestEntry, []runtimeplan.Diagnostic) {
	if cfg.CDNBase == "" {
		cfg.CDNBase = defaultCDNBase
	}
	if cfg.MaxConcurrentResolutions <= 0 {
		cfg.MaxConcurrentResolutions = 4
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}

	pinned := map[string]bool{}
	for _, e := range plan.Manifest {
		pinned[e.Specifier] = true
	}

	var targets []string
	for _, spec := range CollectImportSpecifiers(plan) {
		if pinned[spec] {
			continue
		}
		if ClassifySpecifier(spec) != ClassBareNPM {
			continue
		}
		targets = append(targets, spec)
	}
	if len(targets) == 0 {
		return nil, nil
	}

	var (
		mu         sync.Mutex
		added      []runtimeplan.ManifestEntry
		diags      []runtimeplan.Diagnostic
		failures   int
		budgetHit  bool
		sem        = make(chan struct{}, cfg.MaxConcurrentResolutions)
		wg         sync.WaitGroup
	)

	for _, spec := range targets {
		mu.Lock()
		hit := budgetHit
		mu.Unlock()
		if hit {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(spec string) {
			defer wg.Done()
			defer func() { <-sem }()

			entry, err := resolveLatest(ctx, cfg, spec)

			mu.Lock()
			defer mu.Unlock()
			if budgetHit {
				return
			}
			if err != nil {
				failures++
				diags = append(diags, runtimeplan.Diagnostic{
					Severity: runtimeplan.DiagnosticSeverityWarn,
					Code:     runtimeplan.CodeManifestAutopinFailed,
					Phase:    "autopin",
					Message:  fmt.Sprintf("resolving %q: %v", spec, err),
				})
				if failures > cfg.MaxFailedResolutions {
					budgetHit = true
					diags = append(diags, runtimeplan.Diagnostic{
						Severity: runtimeplan.DiagnosticSeverityWarn,
						Code:     runtimeplan.CodeManifestAutopinBudgetExceeded,
						Phase:    "autopin",
						Message:  "autopin stopped: too many failed resolutions",
					})
				}
				return
			}
			added = append(added, entry)
		}(spec)
	}
	wg.Wait()

	plan.Manifest = append(plan.Manifest, added...)
	return added, diags
}

// resolveLatest probes cfg.CDNBase for pkg's latest version (a plain-text
// body per "GET {baseUrl}/npm:{pkg}") then its package.json to pick the ESM
// entry point.
func resolveLatest(ctx context.Context, cfg AutopinConfig, pkg string) (runtimeplan.ManifestEntry, error) {
	version, err := fetchText(ctx, cfg.Client, strings.TrimSuffix(cfg.CDNBase, "npm:")+"npm:"+pkg)
	if err != nil {
		return runtimeplan.ManifestEntry{}, fmt.Errorf("probing version: %w", err)
	}
	version = strings.TrimSpace(version)
	if version == "" {
		return runtimeplan.ManifestEntry{}, fmt.Errorf("empty version response")
	}

	pkgJSONURL := fmt.Sprintf("%snpm:%s@%s/package.json", strings.TrimSuffix(cfg.CDNBase, "npm:"), pkg, version)
	entryPath := "index.js"
	if raw, err := fetchText(ctx, cfg.Client, pkgJSONURL); err == nil {
		var manifest struct {
			Module string `json:"module"`
			Main   string `json:"main"`
		}
		if json.Unmarshal([]byte(raw), &manifest) == nil {
			if manifest.Module != "" {
				entryPath = strings.TrimPrefix(manifest.Module, "./")
			} else if manifest.Main != "" {
				entryPath = strings.TrimPrefix(manifest.Main, "./")
			}
		}
	}

	resolvedURL := fmt.Sprintf("%snpm:%s@%s/%s", strings.TrimSuffix(cfg.CDNBase, "npm:"), pkg, version, entryPath)
	return runtimeplan.ManifestEntry{
		Specifier:   pkg,
		ResolvedUrl: resolvedURL,
		Version:     version,
		Pinned:      false,
	}, nil
}

func fetchText(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
