package llmclient

import (
	"context"
	"errors"
	"io"
	"testing"
)

func TestMockClient_GenerateResponse(t *testing.T) {
	c := NewMockClient(0)
	resp, err := c.GenerateResponse(context.Background(), Request{Prompt: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text == "" {
		t.Fatalf("expected non-empty text")
	}
}

func TestMockClient_StreamReconstructsText(t *testing.T) {
	c := NewMockClient(0)
	stream, err := c.GenerateResponseStream(context.Background(), Request{Prompt: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer stream.Close()

	var last StreamChunk
	sawDone := false
	for {
		chunk, err := stream.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
		last = chunk
		if chunk.Done {
			sawDone = true
		}
	}
	if !sawDone {
		t.Fatalf("expected exactly one Done chunk before stream end")
	}
	if last.Text == "" {
		t.Fatalf("expected cumulative text on final chunk")
	}
}

func TestMockClient_StructuredResponse_UnsupportedFormat(t *testing.T) {
	c := NewMockClient(0)
	_, err := c.GenerateStructuredResponse(context.Background(), Request{}, "not-a-real-format")
	if err == nil {
		t.Fatalf("expected error for unsupported format")
	}
	var perm *PermanentError
	if !errors.As(err, &perm) {
		t.Fatalf("expected PermanentError, got %T: %v", err, err)
	}
}

func TestMockClient_PromptTemplates(t *testing.T) {
	c := NewMockClient(0)
	if _, ok := c.GetPromptTemplate("greeting"); ok {
		t.Fatalf("expected no template set")
	}
	c.SetPromptTemplate("greeting", "hello {{name}}")
	got, ok := c.GetPromptTemplate("greeting")
	if !ok || got != "hello {{name}}" {
		t.Fatalf("expected stored template, got %q ok=%v", got, ok)
	}
}

func TestHookFromAndPhaseFrom_Defaults(t *testing.T) {
	ctx := context.Background()
	if HookFrom(ctx) != nil {
		t.Fatalf("expected nil hook on bare context")
	}
	if PhaseFrom(ctx) != "unknown" {
		t.Fatalf("expected unknown phase on bare context")
	}
}
