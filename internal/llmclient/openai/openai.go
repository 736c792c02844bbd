// Package openai implements llmclient.Client against the OpenAI Chat
// Completions API. It is the base that the LM Studio provider composes over,
// since LM Studio exposes the same wire format on a local base URL.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/webllm/renderify/internal/httputil"
	"github.com/webllm/renderify/internal/llmclient"
	"github.com/webllm/renderify/internal/reliability"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client calls the OpenAI (or an OpenAI-compatible) Chat Completions API.
type Client struct {
	mu           sync.RWMutex
	http         *http.Client
	apiKey       string
	model        string
	baseURL      string
	policy       *reliability.Policy
	templates    map[string]string
	systemPrompt string
	timeout      time.Duration
}

// Option customizes a new Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client (LM Studio uses this for
// a longer HTTP client timeout).
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithBaseURL overrides the default https://api.openai.com/v1.
func WithBaseURL(url string) Option { return func(c *Client) { c.baseURL = url } }

// WithReliability overrides the retry/circuit-breaker policy.
func WithReliability(cfg reliability.Config) Option {
	return func(c *Client) { c.policy = reliability.NewPolicy(cfg) }
}

// New creates an OpenAI client. If apiKey is empty it falls back to the
// OPENAI_API_KEY environment variable.
func New(apiKey, model string, opts ...Option) *Client {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	c := &Client{
		http:      &http.Client{Timeout: 60 * time.Second},
		apiKey:    apiKey,
		model:     model,
		baseURL:   defaultBaseURL,
		policy:    reliability.NewPolicy(reliability.DefaultConfig()),
		templates: map[string]string{},
		timeout:   60 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Configure(options map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := options["model"].(string); ok && v != "" {
		c.model = v
	}
	if v, ok := options["apiKey"].(string); ok && v != "" {
		c.apiKey = v
	}
	if v, ok := options["baseURL"].(string); ok && v != "" {
		c.baseURL = v
	}
	if v, ok := options["systemPrompt"].(string); ok && v != "" {
		c.systemPrompt = v
	}
	if v, ok := options["timeout"].(time.Duration); ok && v > 0 {
		c.timeout = v
	}
}

func (c *Client) SetPromptTemplate(name, template string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.templates[name] = template
}

func (c *Client) GetPromptTemplate(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.templates[name]
	return t, ok
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type jsonSchemaFormat struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
	Strict bool           `json:"strict,omitempty"`
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Stream         bool            `json:"stream,omitempty"`
	StreamOptions  *streamOptions  `json:"stream_options,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// messages composes the system prompt from three layers, in order: the
// client-level prompt set via Configure, the client's "default" template (if
// one was registered with SetPromptTemplate), then the request's own
// SystemPrompt. Any layer left empty is skipped; all non-empty layers are
// joined so a per-request prompt augments rather than replaces the
// configured defaults.
func (c *Client) messages(req llmclient.Request) []chatMessage {
	c.mu.RLock()
	configured := c.systemPrompt
	defaultTemplate := c.templates["default"]
	c.mu.RUnlock()

	var systemParts []string
	for _, part := range []string{configured, defaultTemplate, req.SystemPrompt} {
		if part != "" {
			systemParts = append(systemParts, part)
		}
	}

	msgs := make([]chatMessage, 0, 2)
	if len(systemParts) > 0 {
		msgs = append(msgs, chatMessage{Role: "system", Content: strings.Join(systemParts, "\n\n")})
	}
	content := req.Prompt
	if len(req.Context) > 0 {
		content += "\n\n[CONTEXT]\n" + httputil.FormatContext(req.Context)
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: content})
	return msgs
}

func (c *Client) newHTTPRequest(ctx context.Context, body chatRequest) (*http.Request, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	url := c.baseURL + "/chat/completions"
	apiKey := c.apiKey
	c.mu.RUnlock()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}
	return httpReq, nil
}

func (c *Client) GenerateResponse(ctx context.Context, req llmclient.Request) (llmclient.Response, error) {
	c.mu.RLock()
	model := c.model
	timeout := c.timeout
	c.mu.RUnlock()

	hook := llmclient.HookFrom(ctx)
	phase := llmclient.PhaseFrom(ctx)
	if hook != nil {
		hook.Before(ctx, phase, req.Prompt, req.Context)
	}

	scope := httputil.NewTimeoutScope(ctx, timeout)
	defer scope.Release()

	body := chatRequest{Model: model, Messages: c.messages(req)}
	var out chatResponse
	resp, err := c.policy.Do(scope.Context(), "openai.chat", func(ctx context.Context) (*http.Response, error) {
		httpReq, err := c.newHTTPRequest(ctx, body)
		if err != nil {
			return nil, err
		}
		return c.http.Do(httpReq)
	})
	if err != nil {
		if scope.TimedOut() {
			err = fmt.Errorf("openai: request timed out after %s: %w", timeout, err)
		}
		if hook != nil {
			hook.After(ctx, phase, nil, err)
		}
		return llmclient.Response{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if hook != nil {
			hook.After(ctx, phase, nil, err)
		}
		return llmclient.Response{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := fmt.Errorf("openai: status %s: %s", resp.Status, httputil.ExtractErrorMessage(raw))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != 429 {
			apiErr = llmclient.NewPermanentError("openai.chat", apiErr)
		}
		if hook != nil {
			hook.After(ctx, phase, nil, apiErr)
		}
		return llmclient.Response{}, apiErr
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		if hook != nil {
			hook.After(ctx, phase, nil, err)
		}
		return llmclient.Response{}, err
	}
	if len(out.Choices) == 0 {
		err := fmt.Errorf("openai: empty choices in response")
		if hook != nil {
			hook.After(ctx, phase, nil, err)
		}
		return llmclient.Response{}, err
	}
	text := out.Choices[0].Message.Content
	if hook != nil {
		hook.After(ctx, phase, json.RawMessage(raw), nil)
	}
	tokens := out.Usage.TotalTokens
	return llmclient.Response{Text: text, TokensUsed: &tokens, Model: model, Raw: raw}, nil
}

func (c *Client) GenerateResponseStream(ctx context.Context, req llmclient.Request) (llmclient.Stream, error) {
	c.mu.RLock()
	model := c.model
	timeout := c.timeout
	c.mu.RUnlock()

	body := chatRequest{
		Model:         model,
		Messages:      c.messages(req),
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
	}

	// The scope only guards establishing the connection; once streaming
	// begins the pump runs on the caller's own ctx for its whole lifetime.
	stream, sctx := llmclient.NewPipeStream(ctx)
	scope := httputil.NewTimeoutScope(ctx, timeout)
	stopWatch := context.AfterFunc(scope.Context(), func() { stream.Close() })
	httpReq, err := c.newHTTPRequest(sctx, body)
	if err != nil {
		stopWatch()
		scope.Release()
		stream.Close()
		return nil, err
	}
	resp, err := c.http.Do(httpReq)
	stopWatch()
	if err != nil {
		if scope.TimedOut() {
			err = fmt.Errorf("openai: request timed out after %s: %w", timeout, err)
		}
		scope.Release()
		stream.Close()
		return nil, err
	}
	scope.Release()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		stream.Close()
		return nil, fmt.Errorf("openai: status %s: %s", resp.Status, httputil.ExtractErrorMessage(raw))
	}

	go c.pumpSSE(sctx, resp.Body, model, stream)
	return stream, nil
}

type streamDelta struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *Client) pumpSSE(ctx context.Context, body io.ReadCloser, model string, stream *llmclient.PipeStream) {
	defer body.Close()
	buf := make([]byte, 0, 4096)
	read := make([]byte, 4096)
	cumulative := ""
	index := 0
	var usageTokens *int

	// With stream_options.include_usage set, the API emits one extra frame
	// after the final content delta whose choices array is empty and whose
	// usage field carries the real token count for the whole response —
	// that frame, not a character count, is where TokensUsed comes from.
	finish := func() {
		tokens := usageTokens
		index++
		stream.Send(llmclient.StreamChunk{Done: true, Text: cumulative, Index: index, TokensUsed: tokens, Model: model})
		stream.CloseSend()
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := body.Read(read)
		if n > 0 {
			buf = append(buf, read[:n]...)
			events, remaining := httputil.ParseSSE(buf, false)
			buf = remaining
			for _, ev := range events {
				if strings.TrimSpace(ev.Data) == "[DONE]" {
					finish()
					return
				}
				var delta streamDelta
				if jsonErr := json.Unmarshal([]byte(ev.Data), &delta); jsonErr != nil {
					continue
				}
				if delta.Usage != nil {
					tokens := delta.Usage.TotalTokens
					usageTokens = &tokens
				}
				if len(delta.Choices) == 0 {
					continue
				}
				piece := delta.Choices[0].Delta.Content
				if piece == "" {
					continue
				}
				cumulative += piece
				index++
				stream.Send(llmclient.StreamChunk{Delta: piece, Text: cumulative, Index: index, Model: model})
			}
		}
		if err != nil {
			if err == io.EOF {
				events, _ := httputil.ParseSSE(buf, true)
				for _, ev := range events {
					var delta streamDelta
					if jsonErr := json.Unmarshal([]byte(ev.Data), &delta); jsonErr == nil {
						if delta.Usage != nil {
							tokens := delta.Usage.TotalTokens
							usageTokens = &tokens
						}
						if len(delta.Choices) > 0 {
							piece := delta.Choices[0].Delta.Content
							if piece != "" {
								cumulative += piece
								index++
								stream.Send(llmclient.StreamChunk{Delta: piece, Text: cumulative, Index: index, Model: model})
							}
						}
					}
				}
				finish()
				return
			}
			stream.Fail(err)
			return
		}
	}
}

func (c *Client) GenerateStructuredResponse(ctx context.Context, req llmclient.Request, format string) (llmclient.StructuredResponse, error) {
	if format != llmclient.StructuredFormatRuntimePlan {
		return llmclient.StructuredResponse{}, llmclient.NewPermanentError("openai.structured", fmt.Errorf("unsupported structured format %q", format))
	}
	c.mu.RLock()
	model := c.model
	timeout := c.timeout
	c.mu.RUnlock()

	scope := httputil.NewTimeoutScope(ctx, timeout)
	defer scope.Release()

	body := chatRequest{
		Model:    model,
		Messages: c.messages(req),
		ResponseFormat: &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaFormat{
				Name:   llmclient.RuntimePlanJSONSchemaName,
				Schema: llmclient.RuntimePlanJSONSchema,
				Strict: true,
			},
		},
	}
	var out chatResponse
	resp, err := c.policy.Do(scope.Context(), "openai.structured", func(ctx context.Context) (*http.Response, error) {
		httpReq, err := c.newHTTPRequest(ctx, body)
		if err != nil {
			return nil, err
		}
		return c.http.Do(httpReq)
	})
	if err != nil {
		if scope.TimedOut() {
			err = fmt.Errorf("openai: request timed out after %s: %w", timeout, err)
		}
		return llmclient.StructuredResponse{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return llmclient.StructuredResponse{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return llmclient.StructuredResponse{}, fmt.Errorf("openai: status %s: %s", resp.Status, httputil.ExtractErrorMessage(raw))
	}
	if err := json.Unmarshal(raw, &out); err != nil || len(out.Choices) == 0 {
		return llmclient.StructuredResponse{Valid: false, Errors: []string{"malformed chat completion envelope"}}, nil
	}
	value, parseErr := httputil.ParseTolerantJSON(out.Choices[0].Message.Content)
	if parseErr != nil {
		return llmclient.StructuredResponse{Valid: false, Errors: []string{parseErr.Error()}}, nil
	}
	return llmclient.StructuredResponse{Valid: true, Value: value}, nil
}
