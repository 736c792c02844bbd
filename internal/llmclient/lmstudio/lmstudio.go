// Package lmstudio implements llmclient.Client for a local LM Studio
// server. LM Studio exposes the same OpenAI-compatible Chat Completions
// wire format, so this package composes openai.Client rather than
// subclassing it: LM Studio is "an OpenAI client pointed somewhere else",
// not a distinct protocol.
package lmstudio

import (
	"net/http"
	"os"
	"time"

	"github.com/webllm/renderify/internal/llmclient"
	"github.com/webllm/renderify/internal/llmclient/openai"
	"github.com/webllm/renderify/internal/reliability"
)

const defaultBaseURL = "http://localhost:1234/v1"

// Client is an llmclient.Client backed by a local LM Studio server. It
// embeds *openai.Client and adds nothing but LM Studio's own defaults (no
// API key requirement, a local base URL, a longer timeout for
// locally-hosted models).
type Client struct {
	*openai.Client
}

// Option customizes a new Client; it is an alias of openai.Option so
// callers configure both layers through one vocabulary.
type Option = openai.Option

// New creates an LM Studio client. baseURL defaults to localhost:1234/v1 or
// the LMSTUDIO_HOST environment variable when set. model is the model
// identifier as loaded in the LM Studio server.
func New(model string, opts ...Option) *Client {
	base := os.Getenv("LMSTUDIO_HOST")
	if base == "" {
		base = defaultBaseURL
	}
	defaults := []Option{
		openai.WithBaseURL(base),
		openai.WithHTTPClient(&http.Client{Timeout: 180 * time.Second}),
		openai.WithReliability(reliability.DefaultConfig()),
	}
	all := append(defaults, opts...)
	inner := openai.New("lm-studio", model, all...)
	inner.Configure(map[string]any{"timeout": 180 * time.Second})
	return &Client{Client: inner}
}

var _ llmclient.Client = (*Client)(nil)
