package google

import "testing"

func TestClient_ConfigureAndTemplates(t *testing.T) {
	c := &Client{model: "gemini-2.5-flash", templates: map[string]string{}}
	c.Configure(map[string]any{"model": "gemini-2.5-pro"})
	if c.model != "gemini-2.5-pro" {
		t.Fatalf("expected model override, got %q", c.model)
	}

	if _, ok := c.GetPromptTemplate("x"); ok {
		t.Fatalf("expected no template set")
	}
	c.SetPromptTemplate("x", "template body")
	got, ok := c.GetPromptTemplate("x")
	if !ok || got != "template body" {
		t.Fatalf("unexpected template round-trip: %q ok=%v", got, ok)
	}
}
