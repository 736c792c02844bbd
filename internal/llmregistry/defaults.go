package llmregistry

import (
	"context"
	"fmt"

	"github.com/webllm/renderify/internal/llmclient"
	"github.com/webllm/renderify/internal/llmclient/anthropic"
	"github.com/webllm/renderify/internal/llmclient/google"
	"github.com/webllm/renderify/internal/llmclient/lmstudio"
	"github.com/webllm/renderify/internal/llmclient/ollama"
	"github.com/webllm/renderify/internal/llmclient/openai"
)

// RegisterDefaults wires the five built-in providers into r under their
// canonical names: "openai", "anthropic", "google", "ollama", "lmstudio".
func RegisterDefaults(r *Registry) {
	r.Register("openai", func(model string, options map[string]any) (llmclient.Client, error) {
		apiKey, _ := options["apiKey"].(string)
		c := openai.New(apiKey, model)
		c.Configure(options)
		return c, nil
	})

	r.Register("anthropic", func(model string, options map[string]any) (llmclient.Client, error) {
		apiKey, _ := options["apiKey"].(string)
		c := anthropic.New(apiKey, model)
		c.Configure(options)
		return c, nil
	})

	r.Register("google", func(model string, options map[string]any) (llmclient.Client, error) {
		c, err := google.New(context.Background(), model)
		if err != nil {
			return nil, fmt.Errorf("llmregistry: google: %w", err)
		}
		c.Configure(options)
		return c, nil
	})

	r.Register("ollama", func(model string, options map[string]any) (llmclient.Client, error) {
		c := ollama.New(model)
		c.Configure(options)
		return c, nil
	})

	r.Register("lmstudio", func(model string, options map[string]any) (llmclient.Client, error) {
		c := lmstudio.New(model)
		c.Configure(options)
		return c, nil
	})

	r.Register("mock", func(model string, options map[string]any) (llmclient.Client, error) {
		return llmclient.NewMockClient(0), nil
	})
}
