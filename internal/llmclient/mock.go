package llmclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MockClient returns deterministic, minimal payloads per phase. It never
// makes a network call; the default registry serves it under the "mock"
// provider name for offline development.
type MockClient struct {
	mu        sync.Mutex
	templates map[string]string
	tokenCap  int
}

// NewMockClient returns a MockClient with the given token capacity (0 means
// the default of 4096).
func NewMockClient(tokenCap int) *MockClient {
	if tokenCap <= 0 {
		tokenCap = 4096
	}
	return &MockClient{templates: map[string]string{}, tokenCap: tokenCap}
}

func (m *MockClient) Configure(options map[string]any) {}

func (m *MockClient) SetPromptTemplate(name, template string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[name] = template
}

func (m *MockClient) GetPromptTemplate(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[name]
	return t, ok
}

func (m *MockClient) GenerateResponse(ctx context.Context, req Request) (Response, error) {
	phase := PhaseFrom(ctx)
	text := fmt.Sprintf("mock response for phase %q", phase)
	if hook := HookFrom(ctx); hook != nil {
		hook.Before(ctx, phase, req.Prompt, req.Context)
		defer hook.After(ctx, phase, json.RawMessage(fmt.Sprintf("%q", text)), nil)
	}
	used := len(req.Prompt) / 4
	return Response{Text: text, TokensUsed: &used, Model: "mock"}, nil
}

func (m *MockClient) GenerateResponseStream(ctx context.Context, req Request) (Stream, error) {
	stream, sctx := NewPipeStream(ctx)
	full := fmt.Sprintf("mock response for phase %q", PhaseFrom(ctx))
	go func() {
		cumulative := ""
		index := 0
		for _, r := range full {
			select {
			case <-sctx.Done():
				return
			default:
			}
			cumulative += string(r)
			index++
			stream.Send(StreamChunk{Delta: string(r), Text: cumulative, Index: index, Model: "mock"})
		}
		used := len(full)
		stream.Send(StreamChunk{Done: true, Text: cumulative, Index: index + 1, TokensUsed: &used, Model: "mock"})
		stream.CloseSend()
	}()
	return stream, nil
}

func (m *MockClient) GenerateStructuredResponse(ctx context.Context, req Request, format string) (StructuredResponse, error) {
	if format != StructuredFormatRuntimePlan {
		return StructuredResponse{}, NewPermanentError("GenerateStructuredResponse", fmt.Errorf("unsupported structured format %q", format))
	}
	obj := map[string]any{
		"root": map[string]any{
			"id":   "root",
			"type": "element",
			"element": map[string]any{
				"tag": "div",
				"children": []any{
					map[string]any{
						"id":   "mock-text",
						"type": "text",
						"text": map[string]any{"value": "mock plan"},
					},
				},
			},
		},
		"capabilities": map[string]any{},
	}
	b, _ := json.Marshal(obj)
	return StructuredResponse{Valid: true, Value: b}, nil
}
