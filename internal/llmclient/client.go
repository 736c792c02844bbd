// Package llmclient defines the provider-agnostic request/response types and
// the LLMClient interface that every upstream vendor client (OpenAI,
// Anthropic, Google, Ollama, LM Studio) implements.
package llmclient

import (
	"context"
	"encoding/json"
)

// Request is the immutable input to a single LLM call.
type Request struct {
	Prompt       string
	Context      map[string]any
	SystemPrompt string
}

// Response is the result of a unary (non-streaming) call.
type Response struct {
	Text       string
	TokensUsed *int
	Model      string
	Raw        json.RawMessage
}

// StreamChunk is one increment of a streaming call. Text is the cumulative
// output so far; Delta is just this chunk's increment. Index is 1-based and
// increases by exactly 1 per chunk. Exactly one chunk in a stream has
// Done == true.
type StreamChunk struct {
	Delta      string
	Text       string
	Done       bool
	Index      int
	TokensUsed *int
	Model      string
	Raw        json.RawMessage
}

// StructuredResponse is the result of a schema-constrained call.
type StructuredResponse struct {
	Valid  bool
	Value  json.RawMessage
	Errors []string
}

// StructuredFormat names the only structured-output schema the providers
// understand. Any other value must fail fast, without an HTTP call.
const StructuredFormatRuntimePlan = "runtime-plan"

// Stream is a pull-based, finite sequence of StreamChunk. Next blocks until
// the next chunk is available, ctx is done, or the stream is exhausted (in
// which case it returns io.EOF). Close releases the underlying HTTP
// request; it is safe to call multiple times and safe to call before the
// stream is drained.
type Stream interface {
	Next(ctx context.Context) (StreamChunk, error)
	Close() error
}

// Client is the uniform interface every provider implements.
type Client interface {
	// Configure overlays any keys present in options onto the client's
	// current configuration; keys absent from options are left untouched.
	Configure(options map[string]any)

	GenerateResponse(ctx context.Context, req Request) (Response, error)
	GenerateResponseStream(ctx context.Context, req Request) (Stream, error)
	GenerateStructuredResponse(ctx context.Context, req Request, format string) (StructuredResponse, error)

	SetPromptTemplate(name, template string)
	GetPromptTemplate(name string) (string, bool)
}
