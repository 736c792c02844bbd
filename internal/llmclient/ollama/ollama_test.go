package ollama

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
		fmt.Fprint(w, `{"message":{"content":"hi there"},"done":true,"eval_count":4}`)
	}))
	defer srv.Close()

	c := New("llama3", WithBaseURL(srv.URL))
	resp, err := c.GenerateResponse(context.Background(), llmclient.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "hi there" {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
	if resp.TokensUsed == nil || *resp.TokensUsed != 4 {
		t.Fatalf("unexpected tokens: %v", resp.TokensUsed)
	}
}

func TestClient_GenerateResponseStream_NDJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, _ := w.(http.Flusher)
		write := func(s string) {
			fmt.Fprint(w, s)
			if flusher != nil {
				flusher.Flush()
			}
		}
		write("{\"message\":{\"content\":\"Hel\"},\"done\":false}\n")
		write("{\"message\":{\"content\":\"lo\"},\"done\":false}\n")
		write("{\"message\":{\"content\":\"\"},\"done\":true,\"eval_count\":9}\n")
	}))
	defer srv.Close()

	c := New("llama3", WithBaseURL(srv.URL))
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
	if final.TokensUsed == nil || *final.TokensUsed != 9 {
		t.Fatalf("expected eval_count 9, got %v", final.TokensUsed)
	}
}
