// Package anthropic implements llmclient.Client against the Anthropic
// Messages API.
package anthropic

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

const (
	defaultBaseURL = "https://api.anthropic.com"
	messagesPath   = "/v1/messages"
	apiVersion     = "2023-06-01"
	defaultMaxTok  = 4096
)

// Client calls the Anthropic Messages API.
type Client struct {
	mu           sync.RWMutex
	http         *http.Client
	apiKey       string
	model        string
	baseURL      string
	maxTokens    int
	policy       *reliability.Policy
	templates    map[string]string
	systemPrompt string
	timeout      time.Duration
}

// Option customizes a new Client.
type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }
func WithBaseURL(url string) Option        { return func(c *Client) { c.baseURL = url } }
func WithMaxTokens(n int) Option           { return func(c *Client) { c.maxTokens = n } }
func WithReliability(cfg reliability.Config) Option {
	return func(c *Client) { c.policy = reliability.NewPolicy(cfg) }
}

// New creates an Anthropic client. If apiKey is empty it falls back to the
// ANTHROPIC_API_KEY environment variable.
func New(apiKey, model string, opts ...Option) *Client {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	c := &Client{
		http:      &http.Client{Timeout: 60 * time.Second},
		apiKey:    apiKey,
		model:     model,
		baseURL:   defaultBaseURL,
		maxTokens: defaultMaxTok,
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
	if v, ok := options["maxTokens"].(int); ok && v > 0 {
		c.maxTokens = v
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

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	System    string    `json:"system,omitempty"`
	MaxTokens int       `json:"max_tokens"`
	Stream    bool      `json:"stream,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// systemPromptFor composes the system prompt in the same order every
// provider uses: the client-level configured prompt, the registered
// "default" template, then the request's own SystemPrompt.
func (c *Client) systemPromptFor(req llmclient.Request) string {
	c.mu.RLock()
	configured := c.systemPrompt
	defaultTemplate := c.templates["default"]
	c.mu.RUnlock()

	var parts []string
	for _, part := range []string{configured, defaultTemplate, req.SystemPrompt} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (c *Client) buildBody(req llmclient.Request, stream bool) messagesRequest {
	content := req.Prompt
	if len(req.Context) > 0 {
		content += "\n\n[CONTEXT]\n" + httputil.FormatContext(req.Context)
	}
	return messagesRequest{
		Model:     c.model,
		System:    c.systemPromptFor(req),
		MaxTokens: c.maxTokens,
		Stream:    stream,
		Messages:  []message{{Role: "user", Content: content}},
	}
}

func (c *Client) newHTTPRequest(ctx context.Context, body messagesRequest) (*http.Request, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	url := c.baseURL + messagesPath
	apiKey := c.apiKey
	c.mu.RUnlock()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	return httpReq, nil
}

func (c *Client) GenerateResponse(ctx context.Context, req llmclient.Request) (llmclient.Response, error) {
	hook := llmclient.HookFrom(ctx)
	phase := llmclient.PhaseFrom(ctx)
	if hook != nil {
		hook.Before(ctx, phase, req.Prompt, req.Context)
	}

	c.mu.RLock()
	model := c.model
	timeout := c.timeout
	c.mu.RUnlock()
	body := c.buildBody(req, false)

	scope := httputil.NewTimeoutScope(ctx, timeout)
	defer scope.Release()

	resp, err := c.policy.Do(scope.Context(), "anthropic.messages", func(ctx context.Context) (*http.Response, error) {
		httpReq, err := c.newHTTPRequest(ctx, body)
		if err != nil {
			return nil, err
		}
		return c.http.Do(httpReq)
	})
	if err != nil {
		if scope.TimedOut() {
			err = fmt.Errorf("anthropic: request timed out after %s: %w", timeout, err)
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
		apiErr := fmt.Errorf("anthropic: status %s: %s", resp.Status, httputil.ExtractErrorMessage(raw))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != 429 {
			apiErr = llmclient.NewPermanentError("anthropic.messages", apiErr)
		}
		if hook != nil {
			hook.After(ctx, phase, nil, apiErr)
		}
		return llmclient.Response{}, apiErr
	}

	var out messagesResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		if hook != nil {
			hook.After(ctx, phase, nil, err)
		}
		return llmclient.Response{}, err
	}
	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if hook != nil {
		hook.After(ctx, phase, json.RawMessage(raw), nil)
	}
	tokens := out.Usage.InputTokens + out.Usage.OutputTokens
	return llmclient.Response{Text: text.String(), TokensUsed: &tokens, Model: model, Raw: raw}, nil
}

type streamEvent struct {
	Type  string `json:"type"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"delta,omitempty"`
	Usage *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (c *Client) GenerateResponseStream(ctx context.Context, req llmclient.Request) (llmclient.Stream, error) {
	c.mu.RLock()
	model := c.model
	timeout := c.timeout
	c.mu.RUnlock()

	body := c.buildBody(req, true)

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
			err = fmt.Errorf("anthropic: request timed out after %s: %w", timeout, err)
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
		return nil, fmt.Errorf("anthropic: status %s: %s", resp.Status, httputil.ExtractErrorMessage(raw))
	}

	go c.pumpSSE(sctx, resp.Body, model, stream)
	return stream, nil
}

func (c *Client) pumpSSE(ctx context.Context, body io.ReadCloser, model string, stream *llmclient.PipeStream) {
	defer body.Close()
	buf := make([]byte, 0, 4096)
	read := make([]byte, 4096)
	cumulative := ""
	index := 0
	var usage *int

	emit := func(events []httputil.SSEEvent) bool {
		for _, ev := range events {
			var se streamEvent
			if err := json.Unmarshal([]byte(ev.Data), &se); err != nil {
				continue
			}
			switch se.Type {
			case "content_block_delta":
				if se.Delta != nil && se.Delta.Type == "text_delta" {
					cumulative += se.Delta.Text
					index++
					stream.Send(llmclient.StreamChunk{Delta: se.Delta.Text, Text: cumulative, Index: index, Model: model})
				}
			case "message_delta":
				if se.Usage != nil {
					tok := se.Usage.InputTokens + se.Usage.OutputTokens
					usage = &tok
				}
			case "message_stop":
				index++
				stream.Send(llmclient.StreamChunk{Done: true, Text: cumulative, Index: index, TokensUsed: usage, Model: model})
				stream.CloseSend()
				return true
			case "error":
				msg := "unknown streaming error"
				if se.Error != nil {
					msg = se.Error.Message
				}
				stream.Fail(fmt.Errorf("anthropic: %s", msg))
				return true
			}
		}
		return false
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
			if emit(events) {
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				events, _ := httputil.ParseSSE(buf, true)
				if !emit(events) {
					index++
					stream.Send(llmclient.StreamChunk{Done: true, Text: cumulative, Index: index, TokensUsed: usage, Model: model})
					stream.CloseSend()
				}
				return
			}
			stream.Fail(err)
			return
		}
	}
}

func (c *Client) GenerateStructuredResponse(ctx context.Context, req llmclient.Request, format string) (llmclient.StructuredResponse, error) {
	if format != llmclient.StructuredFormatRuntimePlan {
		return llmclient.StructuredResponse{}, llmclient.NewPermanentError("anthropic.structured", fmt.Errorf("unsupported structured format %q", format))
	}
	req.SystemPrompt = strings.TrimSpace(req.SystemPrompt + "\n\nRespond with a single JSON object only, no prose, no markdown fences.")
	resp, err := c.GenerateResponse(ctx, req)
	if err != nil {
		return llmclient.StructuredResponse{}, err
	}
	value, parseErr := httputil.ParseTolerantJSON(resp.Text)
	if parseErr != nil {
		return llmclient.StructuredResponse{Valid: false, Errors: []string{parseErr.Error()}}, nil
	}
	return llmclient.StructuredResponse{Valid: true, Value: value}, nil
}
