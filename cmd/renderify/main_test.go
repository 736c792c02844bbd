package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/webllm/renderify/internal/config"
)

func TestLoadPlan_DecodesValidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.json")
	content := `{"id":"p1","root":{"id":"n1","type":"text","text":{"value":"hi"}},"capabilities":{}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	plan, err := loadPlan(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.ID != "p1" || plan.Root == nil || plan.Root.Text == nil || plan.Root.Text.Value != "hi" {
		t.Fatalf("unexpected plan: %+v", plan)
	}
}

func TestLoadPlan_MissingFileIsError(t *testing.T) {
	if _, err := loadPlan(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadContext_EmptyPathReturnsNil(t *testing.T) {
	ctx, err := loadContext("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx != nil {
		t.Fatalf("expected nil context, got %+v", ctx)
	}
}

func TestLoadContext_DecodesValidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ctx.json")
	if err := os.WriteFile(path, []byte(`{"user":"ada"}`), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	ctx, err := loadContext(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctx["user"] != "ada" {
		t.Fatalf("unexpected context: %+v", ctx)
	}
}

func TestPlanFromPrompt_MockProviderReturnsDecodedPlan(t *testing.T) {
	cfg := &config.Config{}
	plan, err := planFromPrompt(context.Background(), cfg, "render a greeting", "mock", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.ID == "" {
		t.Fatalf("expected a generated plan id")
	}
	if plan.Root == nil || plan.Root.Element == nil || plan.Root.Element.Tag != "div" {
		t.Fatalf("unexpected plan root: %+v", plan.Root)
	}
}

func TestPlanFromPrompt_UnknownProviderIsError(t *testing.T) {
	cfg := &config.Config{}
	if _, err := planFromPrompt(context.Background(), cfg, "x", "not-a-provider", ""); err == nil {
		t.Fatalf("expected error for unregistered provider")
	}
}
