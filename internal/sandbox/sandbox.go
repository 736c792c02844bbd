// Package sandbox enforces the capability restrictions a RuntimePlan
// declares (sandbox mode, allowed network origins, global injection) before
// the executor runs a component's render/state-update step.
//
// There is no in-process JavaScript VM to isolate here — component bodies
// are transpiled JSX rendered by Go code, not executed as foreign script —
// so "sandboxing" in this module means capability restriction: which
// globals a component's execution context receives and which network
// origins it may address, checked the same way safeio.SafeFS contains
// filesystem paths to a root.
package sandbox

import "fmt"

// Mode mirrors runtimeplan.Capabilities.SandboxMode, naming how isolated a
// component's execution context is. The strictness ordering from most to
// least restrictive is ShadowRealm, Worker, IFrame, None.
type Mode string

const (
	// ModeShadowRealm grants no globals beyond pure value computation: no
	// network, no injected host objects. The closest equivalent to
	// evaluating an expression with no ambient environment.
	ModeShadowRealm Mode = "shadowrealm"
	// ModeWorker grants a restricted globals set (state dispatch, the
	// template scope) but no direct network access; network requests must
	// go through the host's LLM client layer, not an arbitrary fetch.
	ModeWorker Mode = "worker"
	// ModeIFrame additionally grants network access, gated by
	// Capabilities.AllowedOrigins.
	ModeIFrame Mode = "iframe"
	// ModeNone applies no restriction; every global and origin is allowed.
	// Intended for trusted, first-party plans only.
	ModeNone Mode = "none"
)

// ParseMode validates a string against the known modes. An empty value
// defaults to the strictest mode rather than the most permissive, and an
// unrecognized mode fails closed with an error.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeShadowRealm, ModeWorker, ModeIFrame, ModeNone:
		return Mode(s), nil
	case "":
		return ModeShadowRealm, nil
	default:
		return "", fmt.Errorf("sandbox: unknown mode %q", s)
	}
}

// allowsNetwork reports whether mode permits any network access at all,
// independent of origin allowlisting.
func (m Mode) allowsNetwork() bool {
	return m == ModeIFrame || m == ModeNone
}

// allowsGlobal reports whether mode permits a named global's injection.
func (m Mode) allowsGlobal(name string) bool {
	if m == ModeNone {
		return true
	}
	if m == ModeShadowRealm {
		return false
	}
	// Worker and IFrame share the same restricted globals allowlist; IFrame
	// additionally allows network, handled separately by allowsNetwork.
	switch name {
	case "state", "dispatch", "template":
		return true
	default:
		return false
	}
}
