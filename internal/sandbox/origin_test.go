package sandbox

import "testing"

func TestOriginGuard_AllowsListedOrigin(t *testing.T) {
	g := NewOriginGuard([]string{"https://api.example.com"})
	if err := g.Check(ModeIFrame, "https://api.example.com/v1/widgets"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOriginGuard_RejectsUnlistedOrigin(t *testing.T) {
	g := NewOriginGuard([]string{"https://api.example.com"})
	if err := g.Check(ModeIFrame, "https://evil.example.net/steal"); err == nil {
		t.Fatalf("expected rejection for unlisted origin")
	}
}

func TestOriginGuard_WildcardAllowsAny(t *testing.T) {
	g := NewOriginGuard([]string{"*"})
	if err := g.Check(ModeNone, "https://anything.example.org/path"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestOriginGuard_RejectsWhenModeDisallowsNetwork(t *testing.T) {
	g := NewOriginGuard([]string{"*"})
	if err := g.Check(ModeWorker, "https://anything.example.org/path"); err == nil {
		t.Fatalf("expected rejection: worker mode has no network access")
	}
}

func TestOriginGuard_RejectsMalformedTarget(t *testing.T) {
	g := NewOriginGuard([]string{"*"})
	if err := g.Check(ModeIFrame, "not a url"); err == nil {
		t.Fatalf("expected rejection for malformed target")
	}
}

func TestOriginGuard_RejectsRelativeTarget(t *testing.T) {
	g := NewOriginGuard([]string{"*"})
	if err := g.Check(ModeIFrame, "/just/a/path"); err == nil {
		t.Fatalf("expected rejection for non-absolute target")
	}
}
