package moduleloader

import (
	"fmt"
	"net/url"
	"strings"
)

// defaultCDNBase is the default CDN used to resolve bare and npm: specifiers
// that carry no manifest entry, overridable per Loader with WithCDNBase and
// per autopin run with AutopinConfig.CDNBase.
const defaultCDNBase = "https://ga.jspm.io/npm:"

// runtimeAliases resolves the well-known runtime specifiers spec §4.5 calls
// out by name: even with enforceModuleManifest=true, these still resolve
// through a fixed compatibility table rather than failing
// RUNTIME_MANIFEST_MISSING.
var runtimeAliases = map[string]string{
	"preact":              defaultCDNBase + "preact@10",
	"preact/hooks":        defaultCDNBase + "preact@10/hooks",
	"preact/jsx-runtime":  defaultCDNBase + "preact@10/jsx-runtime",
	"react":               defaultCDNBase + "preact@10/compat",
	"react-dom":           defaultCDNBase + "preact@10/compat",
	"react/jsx-runtime":   defaultCDNBase + "preact@10/jsx-runtime",
}

// SpecifierClass tags how a module specifier names its target, the
// resolver's first decision per spec §4.5.
type SpecifierClass string

const (
	ClassBareNPM    SpecifierClass = "bare-npm"
	ClassNPMPrefix  SpecifierClass = "npm-prefixed"
	ClassAbsoluteURL SpecifierClass = "absolute-url"
	ClassDataURL    SpecifierClass = "data-url"
	ClassLocalPath  SpecifierClass = "local-path"
	ClassAlias      SpecifierClass = "runtime-alias"
	ClassRejected   SpecifierClass = "rejected"
)

// ClassifySpecifier sorts spec into one of the classes §4.5 enumerates.
// Unsupported schemes (file:, jsr:, node:) and the empty string classify as
// ClassRejected; callers must turn that into a fatal diagnostic rather than
// attempt a fetch. A Node built-in named without the node: scheme (e.g.
// "fs") classifies as ClassBareNPM.
func ClassifySpecifier(spec string) SpecifierClass {
	spec = strings.TrimSpace(spec)
	if _, ok := runtimeAliases[spec]; ok {
		return ClassAlias
	}
	switch {
	case strings.HasPrefix(spec, "data:"):
		return ClassDataURL
	case strings.HasPrefix(spec, "http://"), strings.HasPrefix(spec, "https://"):
		return ClassAbsoluteURL
	case strings.HasPrefix(spec, "npm:"):
		return ClassNPMPrefix
	case strings.HasPrefix(spec, "file:"), strings.HasPrefix(spec, "jsr:"), strings.HasPrefix(spec, "node:"):
		return ClassRejected
	case strings.HasPrefix(spec, "./"), strings.HasPrefix(spec, "../"), strings.HasPrefix(spec, "/"):
		return ClassLocalPath
	case spec == "":
		return ClassRejected
	default:
		return ClassBareNPM
	}
}

// ResolveSpecifier turns spec into a fetchable URL using cdnBase for bare and
// npm: specifiers (empty cdnBase falls back to defaultCDNBase), the alias
// table for runtime aliases, and itself for absolute/data URLs. Local paths
// and rejected classes return an error: local paths are never resolved for
// remote fetch, and rejected schemes are unsupported outright.
func ResolveSpecifier(spec, cdnBase string) (string, SpecifierClass, error) {
	class := ClassifySpecifier(spec)
	if cdnBase == "" {
		cdnBase = defaultCDNBase
	}
	switch class {
	case ClassAlias:
		return runtimeAliases[spec], class, nil
	case ClassAbsoluteURL, ClassDataURL:
		return spec, class, nil
	case ClassNPMPrefix:
		return cdnBase + strings.TrimPrefix(spec, "npm:"), class, nil
	case ClassBareNPM:
		return cdnBase + spec, class, nil
	case ClassLocalPath:
		return "", class, fmt.Errorf("moduleloader: local path specifier %q cannot be resolved for remote fetch", spec)
	default:
		return "", class, fmt.Errorf("moduleloader: unsupported specifier %q", spec)
	}
}

// NetworkPolicy gates which resolved URLs the loader is allowed to fetch.
// AllowArbitraryNetwork disables the allowlist entirely (first-party, fully
// trusted plans only); otherwise a URL's host must match AllowedHosts,
// itself or a wildcard parent (e.g. "*.jsdelivr.net" matches
// "cdn.jsdelivr.net"), with default ports (80/443) normalized away before
// comparison.
type NetworkPolicy struct {
	AllowArbitraryNetwork bool
	AllowedHosts          []string
}

// Check returns nil if target may be fetched under p, or an error identifying
// the blocked host otherwise.
func (p NetworkPolicy) Check(target string) error {
	if p.AllowArbitraryNetwork {
		return nil
	}
	if strings.HasPrefix(target, "data:") {
		return nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("moduleloader: malformed URL %q: %w", target, err)
	}
	host := normalizeHost(u.Host)
	for _, allowed := range p.AllowedHosts {
		if hostMatches(host, normalizeHost(allowed)) {
			return nil
		}
	}
	return fmt.Errorf("moduleloader: host %q is blocked by runtime network policy", host)
}

func normalizeHost(host string) string {
	host = strings.ToLower(host)
	host = strings.TrimSuffix(host, ":443")
	host = strings.TrimSuffix(host, ":80")
	return host
}

func hostMatches(host, pattern string) bool {
	if pattern == host {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		suffix := pattern[1:] // ".example.com"
		return strings.HasSuffix(host, suffix)
	}
	return false
}
