package sandbox

import (
	"fmt"
	"net/url"
	"strings"
)

// OriginGuard checks a request origin against an allowlist, the same
// contain-to-root idea as safeio.SafeFS applied to URL origins instead of
// filesystem paths: every address a sandboxed component wants to reach
// must resolve to something explicitly permitted, or it is rejected.
type OriginGuard struct {
	allowed map[string]bool
	anyHost bool
}

// NewOriginGuard builds a guard from a Capabilities.AllowedOrigins list.
// A single "*" entry permits any origin.
func NewOriginGuard(allowedOrigins []string) *OriginGuard {
	g := &OriginGuard{allowed: make(map[string]bool, len(allowedOrigins))}
	for _, o := range allowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			g.anyHost = true
			continue
		}
		if o != "" {
			g.allowed[strings.ToLower(o)] = true
		}
	}
	return g
}

// Check validates that mode permits network access at all, and that target
// resolves to an allowed origin.
func (g *OriginGuard) Check(mode Mode, target string) error {
	if !mode.allowsNetwork() {
		return fmt.Errorf("sandbox: mode %q permits no network access", mode)
	}
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("sandbox: invalid target %q: %w", target, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("sandbox: target %q is not an absolute URL", target)
	}
	origin := strings.ToLower(u.Scheme + "://" + u.Host)
	if g.anyHost || g.allowed[origin] {
		return nil
	}
	return fmt.Errorf("sandbox: origin %q is not in the allowed list", origin)
}
