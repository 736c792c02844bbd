package llmregistry

import (
	"errors"
	"testing"

	"github.com/webllm/renderify/internal/llmclient"
)

func TestRegistry_BuildUnknownProvider(t *testing.T) {
	r := New()
	_, err := r.Build("nonexistent", "model", nil)
	if !errors.Is(err, ErrProviderNotRegistered) {
		t.Fatalf("expected ErrProviderNotRegistered, got %v", err)
	}
}

func TestRegistry_CaseInsensitiveLookup(t *testing.T) {
	r := New()
	called := false
	r.Register("OpenAI", func(model string, options map[string]any) (llmclient.Client, error) {
		called = true
		return llmclient.NewMockClient(0), nil
	})
	if _, err := r.Build("openai", "gpt-test", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatalf("expected factory registered under 'OpenAI' to be reachable via 'openai'")
	}
}

func TestRegisterDefaults_CoversFiveProvidersAndMock(t *testing.T) {
	r := New()
	RegisterDefaults(r)
	want := []string{"anthropic", "google", "lmstudio", "mock", "ollama", "openai"}
	got := r.Providers()
	if len(got) != len(want) {
		t.Fatalf("expected %d providers, got %d: %v", len(want), len(got), got)
	}
	for i, name := range want {
		if got[i] != name {
			t.Fatalf("expected provider %q at index %d, got %q", name, i, got[i])
		}
	}
}

func TestRegistry_Build_Mock(t *testing.T) {
	r := New()
	RegisterDefaults(r)
	c, err := r.Build("MOCK", "unused", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c == nil {
		t.Fatalf("expected non-nil client")
	}
}
