package anthropic

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
		fmt.Fprint(w, `{"content":[{"type":"text","text":"hi there"}],"usage":{"input_tokens":3,"output_tokens":2}}`)
	}))
	defer srv.Close()

	c := New("test-key", "claude-test", WithBaseURL(srv.URL))
	resp, err := c.GenerateResponse(context.Background(), llmclient.Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "hi there" {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
	if resp.TokensUsed == nil || *resp.TokensUsed != 5 {
		t.Fatalf("unexpected tokens: %v", resp.TokensUsed)
	}
}

func TestClient_GenerateResponse_PermanentOn4xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad"}}`)
	}))
	defer srv.Close()

	c := New("test-key", "claude-test", WithBaseURL(srv.URL))
	_, err := c.GenerateResponse(context.Background(), llmclient.Request{Prompt: "hi"})
	var perm *llmclient.PermanentError
	if !errors.As(err, &perm) {
		t.Fatalf("expected PermanentError, got %v", err)
	}
}

func TestClient_GenerateResponseStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		write := func(s string) {
			fmt.Fprint(w, s)
			if flusher != nil {
				flusher.Flush()
			}
		}
		write("event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Hel\"}}\n\n")
		write("event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"lo\"}}\n\n")
		write("event: message_delta\ndata: {\"type\":\"message_delta\",\"usage\":{\"input_tokens\":1,\"output_tokens\":2}}\n\n")
		write("event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n")
	}))
	defer srv.Close()

	c := New("test-key", "claude-test", WithBaseURL(srv.URL))
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
	if final.TokensUsed == nil || *final.TokensUsed != 3 {
		t.Fatalf("expected usage 3, got %v", final.TokensUsed)
	}
}
