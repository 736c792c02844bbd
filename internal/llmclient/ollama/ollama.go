// Package ollama implements llmclient.Client against a local Ollama server's
// NDJSON-framed /api/chat endpoint.
package ollama

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

const defaultBaseURL = "http://localhost:11434"

// Client calls a local Ollama server.
type Client struct {
	mu           sync.RWMutex
	http         *http.Client
	model        string
	baseURL      string
	policy       *reliability.Policy
	templates    map[string]string
	systemPrompt string
	timeout      time.Duration
}

// Option customizes a new Client.
type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }
func WithBaseURL(url string) Option        { return func(c *Client) { c.baseURL = url } }
func WithReliability(cfg reliability.Config) Option {
	return func(c *Client) { c.policy = reliability.NewPolicy(cfg) }
}

// New creates an Ollama client. baseURL defaults to localhost:11434 or the
// OLLAMA_HOST environment variable when set.
func New(model string, opts ...Option) *Client {
	base := os.Getenv("OLLAMA_HOST")
	if base == "" {
		base = defaultBaseURL
	}
	c := &Client{
		http:      &http.Client{Timeout: 120 * time.Second},
		model:     model,
		baseURL:   base,
		policy:    reliability.NewPolicy(reliability.DefaultConfig()),
		templates: map[string]string{},
		timeout:   120 * time.Second,
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

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
}

type chatLine struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done      bool `json:"done"`
	EvalCount int  `json:"eval_count"`
}

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
	url := c.baseURL + "/api/chat"
	c.mu.RUnlock()
	return http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
}

// GenerateResponse issues a non-streaming request (stream:false still
// returns a single NDJSON line from Ollama).
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

	scope := httputil.NewTimeoutScope(ctx, timeout)
	defer scope.Release()

	body := chatRequest{Model: model, Messages: c.messages(req), Stream: false}
	var line chatLine
	resp, err := c.policy.Do(scope.Context(), "ollama.chat", func(ctx context.Context) (*http.Response, error) {
		httpReq, err := c.newHTTPRequest(ctx, body)
		if err != nil {
			return nil, err
		}
		return c.http.Do(httpReq)
	})
	if err != nil {
		if scope.TimedOut() {
			err = fmt.Errorf("ollama: request timed out after %s: %w", timeout, err)
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
		apiErr := fmt.Errorf("ollama: status %s: %s", resp.Status, httputil.ExtractErrorMessage(raw))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != 429 {
			apiErr = llmclient.NewPermanentError("ollama.chat", apiErr)
		}
		if hook != nil {
			hook.After(ctx, phase, nil, apiErr)
		}
		return llmclient.Response{}, apiErr
	}
	if err := json.Unmarshal(bytes.TrimSpace(raw), &line); err != nil {
		if hook != nil {
			hook.After(ctx, phase, nil, err)
		}
		return llmclient.Response{}, err
	}
	if hook != nil {
		hook.After(ctx, phase, raw, nil)
	}
	tokens := line.EvalCount
	return llmclient.Response{Text: line.Message.Content, TokensUsed: &tokens, Model: model, Raw: raw}, nil
}

func (c *Client) GenerateResponseStream(ctx context.Context, req llmclient.Request) (llmclient.Stream, error) {
	c.mu.RLock()
	model := c.model
	timeout := c.timeout
	c.mu.RUnlock()

	body := chatRequest{Model: model, Messages: c.messages(req), Stream: true}

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
			err = fmt.Errorf("ollama: request timed out after %s: %w", timeout, err)
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
		return nil, fmt.Errorf("ollama: status %s: %s", resp.Status, httputil.ExtractErrorMessage(raw))
	}

	go c.pumpNDJSON(sctx, resp.Body, model, stream)
	return stream, nil
}

func (c *Client) pumpNDJSON(ctx context.Context, body io.ReadCloser, model string, stream *llmclient.PipeStream) {
	defer body.Close()
	buf := make([]byte, 0, 4096)
	read := make([]byte, 4096)
	cumulative := ""
	index := 0

	emit := func(payloads []json.RawMessage) (done bool) {
		for _, p := range payloads {
			var line chatLine
			if err := json.Unmarshal(p, &line); err != nil {
				continue
			}
			if line.Message.Content != "" {
				cumulative += line.Message.Content
				index++
				if !stream.Send(llmclient.StreamChunk{Delta: line.Message.Content, Text: cumulative, Index: index, Model: model}) {
					return true
				}
			}
			if line.Done {
				tokens := line.EvalCount
				index++
				stream.Send(llmclient.StreamChunk{Done: true, Text: cumulative, Index: index, TokensUsed: &tokens, Model: model})
				stream.CloseSend()
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
			payloads, remaining, perr := httputil.ParseNDJSON(buf, false)
			buf = remaining
			if perr != nil {
				stream.Fail(perr)
				return
			}
			if emit(payloads) {
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				payloads, _, perr := httputil.ParseNDJSON(buf, true)
				if perr != nil {
					stream.Fail(perr)
					return
				}
				if !emit(payloads) {
					tokens := 0
					index++
					stream.Send(llmclient.StreamChunk{Done: true, Text: cumulative, Index: index, TokensUsed: &tokens, Model: model})
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
		return llmclient.StructuredResponse{}, llmclient.NewPermanentError("ollama.structured", fmt.Errorf("unsupported structured format %q", format))
	}
	c.mu.RLock()
	model := c.model
	timeout := c.timeout
	c.mu.RUnlock()

	scope := httputil.NewTimeoutScope(ctx, timeout)
	defer scope.Release()

	body := chatRequest{Model: model, Messages: c.messages(req), Stream: false, Format: "json"}
	var line chatLine
	resp, err := c.policy.Do(scope.Context(), "ollama.structured", func(ctx context.Context) (*http.Response, error) {
		httpReq, err := c.newHTTPRequest(ctx, body)
		if err != nil {
			return nil, err
		}
		return c.http.Do(httpReq)
	})
	if err != nil {
		if scope.TimedOut() {
			err = fmt.Errorf("ollama: request timed out after %s: %w", timeout, err)
		}
		return llmclient.StructuredResponse{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return llmclient.StructuredResponse{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return llmclient.StructuredResponse{}, fmt.Errorf("ollama: status %s: %s", resp.Status, httputil.ExtractErrorMessage(raw))
	}
	if err := json.Unmarshal(bytes.TrimSpace(raw), &line); err != nil {
		return llmclient.StructuredResponse{Valid: false, Errors: []string{err.Error()}}, nil
	}
	value, parseErr := httputil.ParseTolerantJSON(strings.TrimSpace(line.Message.Content))
	if parseErr != nil {
		return llmclient.StructuredResponse{Valid: false, Errors: []string{parseErr.Error()}}, nil
	}
	return llmclient.StructuredResponse{Valid: true, Value: value}, nil
}
