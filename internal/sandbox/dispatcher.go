package sandbox

import (
	"fmt"

	"github.com/webllm/renderify/internal/runtimeplan"
)

// Grant is the resolved set of capabilities a component's execution
// context receives for one render/state-update step.
type Grant struct {
	Mode    Mode
	Globals map[string]bool
	Origins *OriginGuard
}

// AllowsGlobal reports whether name may be injected into the component's
// execution scope under this grant.
func (g Grant) AllowsGlobal(name string) bool {
	return g.Globals[name]
}

// CheckOrigin validates a network target against the grant's origin guard.
func (g Grant) CheckOrigin(target string) error {
	return g.Origins.Check(g.Mode, target)
}

// Dispatcher resolves a RuntimePlan's Capabilities into a Grant, failing
// closed on any malformed or unrecognized declaration rather than
// defaulting to an open one.
type Dispatcher struct {
	candidateGlobals []string

	// Worker, IFrame, and ShadowRealm back the three browser sandbox kinds.
	// Left nil on this backend — there is no global Worker, document, or
	// ShadowRealm to implement them against — which is exactly what makes
	// ExecuteSource's fallback chain land on noneHost every time.
	Worker      Host
	IFrame      Host
	ShadowRealm Host
}

// NewDispatcher creates a Dispatcher. candidateGlobals lists every global
// name the executor might inject (e.g. "state", "dispatch", "template");
// the dispatcher filters that list down to what the resolved mode permits.
func NewDispatcher(candidateGlobals ...string) *Dispatcher {
	if len(candidateGlobals) == 0 {
		candidateGlobals = []string{"state", "dispatch", "template"}
	}
	return &Dispatcher{candidateGlobals: candidateGlobals}
}

// Resolve builds the Grant for caps.
func (d *Dispatcher) Resolve(caps runtimeplan.Capabilities) (Grant, error) {
	mode, err := ParseMode(caps.SandboxMode)
	if err != nil {
		return Grant{}, err
	}
	globals := make(map[string]bool, len(d.candidateGlobals))
	for _, name := range d.candidateGlobals {
		globals[name] = mode.allowsGlobal(name)
	}
	return Grant{
		Mode:    mode,
		Globals: globals,
		Origins: NewOriginGuard(caps.AllowedOrigins),
	}, nil
}

// RequireNetwork is a convenience check used before any component is
// allowed to drive an LLM call directly (most plans route LLM calls through
// the host's own client, but a component may be granted direct network
// access under ModeIFrame/ModeNone with an explicit allowed origin).
func RequireNetwork(grant Grant, target string) error {
	if err := grant.CheckOrigin(target); err != nil {
		return fmt.Errorf("sandbox: network request denied: %w", err)
	}
	return nil
}
