package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/webllm/renderify/internal/llmclient"
)

func TestClient_GenerateResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"hello there"}}],"usage":{"total_tokens":7}}`)
	}))
	defer srv.Close()

	c := New("test-key", "gpt-test", WithBaseURL(srv.URL))
	resp, err := c.GenerateResponse(context.Background(), llmclient.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "hello there" {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
	if resp.TokensUsed == nil || *resp.TokensUsed != 7 {
		t.Fatalf("unexpected tokens used: %v", resp.TokensUsed)
	}
}

func TestClient_GenerateResponse_PermanentOn4xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad request"}}`)
	}))
	defer srv.Close()

	c := New("test-key", "gpt-test", WithBaseURL(srv.URL))
	_, err := c.GenerateResponse(context.Background(), llmclient.Request{Prompt: "hi"})
	if err == nil {
		t.Fatalf("expected error")
	}
	var perm *llmclient.PermanentError
	if !errors.As(err, &perm) {
		t.Fatalf("expected PermanentError, got %T: %v", err, err)
	}
}

func TestClient_GenerateResponseStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		if flusher != nil {
			flusher.Flush()
		}
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		if flusher != nil {
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := New("test-key", "gpt-test", WithBaseURL(srv.URL))
	stream, err := c.GenerateResponseStream(context.Background(), llmclient.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer stream.Close()

	var final llmclient.StreamChunk
	for {
		chunk, err := stream.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("unexpected stream error: %v", err)
		}
		final = chunk
		if chunk.Done {
			break
		}
	}
	if final.Text != "Hello" {
		t.Fatalf("expected cumulative text 'Hello', got %q", final.Text)
	}
	if !final.Done {
		t.Fatalf("expected final chunk to be Done")
	}
}

func TestClient_GenerateStructuredResponse_RejectsUnknownFormat(t *testing.T) {
	c := New("test-key", "gpt-test")
	_, err := c.GenerateStructuredResponse(context.Background(), llmclient.Request{}, "nonsense")
	var perm *llmclient.PermanentError
	if !errors.As(err, &perm) {
		t.Fatalf("expected PermanentError, got %v", err)
	}
}
