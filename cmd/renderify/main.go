// Command renderify executes a single RuntimePlan read from a JSON file and
// prints the rendered result, grounded on InsightifyCore's cmd/archflow
// single-shot CLI shape (flag.String inputs, godotenv, a linear run then
// exit) rather than the long-running cmd/api server shape.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/webllm/renderify/internal/app"
	"github.com/webllm/renderify/internal/config"
	"github.com/webllm/renderify/internal/executor"
	"github.com/webllm/renderify/internal/llmclient"
	"github.com/webllm/renderify/internal/llmregistry"
	"github.com/webllm/renderify/internal/runtimeplan"
)

func main() {
	planPath := flag.String("plan", "", "path to a RuntimePlan JSON file")
	contextPath := flag.String("context", "", "optional path to a JSON object used as execution context")
	prompt := flag.String("prompt", "", "generate a plan from an LLM prompt instead of --plan")
	provider := flag.String("provider", "", "LLM provider for --prompt (openai, anthropic, google, ollama, lmstudio, mock); defaults to config")
	model := flag.String("model", "", "LLM model for --prompt; defaults to config")
	flag.Parse()

	if *planPath == "" && *prompt == "" {
		log.Fatal("renderify: one of --plan or --prompt is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("renderify: loading config: %v", err)
	}

	var plan *runtimeplan.RuntimePlan
	if *prompt != "" {
		plan, err = planFromPrompt(context.Background(), cfg, *prompt, *provider, *model)
	} else {
		plan, err = loadPlan(*planPath)
	}
	if err != nil {
		log.Fatalf("renderify: %v", err)
	}

	execCtx, err := loadContext(*contextPath)
	if err != nil {
		log.Fatalf("renderify: %v", err)
	}

	rt, err := app.NewRuntime(cfg)
	if err != nil {
		log.Fatalf("renderify: %v", err)
	}

	result, err := rt.Execute(context.Background(), executor.ExecuteRequest{
		Plan:    plan,
		Context: execCtx,
	})
	if err != nil {
		log.Fatalf("renderify: execute: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatalf("renderify: encoding result: %v", err)
	}
}

func loadPlan(path string) (*runtimeplan.RuntimePlan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}
	var plan runtimeplan.RuntimePlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, fmt.Errorf("decoding plan: %w", err)
	}
	if plan.ID == "" {
		plan.ID = uuid.New().String()
	}
	return &plan, nil
}

// planFromPrompt resolves provider/model against cfg's defaults, builds a
// client through llmregistry, asks it to generate a RuntimePlan, and parses
// the response text (tolerating a ```json fenced block, since providers
// routinely wrap structured output in prose) into a plan. This is the
// "prompt -> LLM client -> JSON text -> plan parser -> plan" leg of the
// data flow that precedes executor.Execute; it lives here rather than in
// the execution core because it is host-level glue, not part of the
// RuntimePlan runtime itself.
func planFromPrompt(ctx context.Context, cfg *config.Config, prompt, provider, model string) (*runtimeplan.RuntimePlan, error) {
	if provider == "" {
		provider = cfg.LLMProvider
	}
	if model == "" {
		model = cfg.LLMModel
	}

	registry := llmregistry.New()
	llmregistry.RegisterDefaults(registry)

	client, err := registry.Build(provider, model, map[string]any{
		"apiKey":  cfg.LLMAPIKey,
		"baseURL": firstNonEmptyHost(provider, cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("building llm client: %w", err)
	}

	structured, err := client.GenerateStructuredResponse(ctx, llmclient.Request{
		Prompt:       prompt,
		SystemPrompt: "Respond with a single JSON object matching the RuntimePlan schema: id, root, capabilities.",
	}, llmclient.StructuredFormatRuntimePlan)
	if err != nil {
		return nil, fmt.Errorf("generating plan: %w", err)
	}
	if !structured.Valid {
		return nil, fmt.Errorf("llm returned no parseable plan: %v", structured.Errors)
	}

	var plan runtimeplan.RuntimePlan
	if err := json.Unmarshal(structured.Value, &plan); err != nil {
		return nil, fmt.Errorf("decoding generated plan: %w", err)
	}
	if plan.ID == "" {
		plan.ID = uuid.New().String()
	}
	return &plan, nil
}

// firstNonEmptyHost resolves the provider-specific host override (ollama and
// lmstudio run against a local server rather than a hosted API).
func firstNonEmptyHost(provider string, cfg *config.Config) string {
	switch provider {
	case "ollama":
		return cfg.OllamaHost
	case "lmstudio":
		return cfg.LMStudioHost
	default:
		return ""
	}
}

func loadContext(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading context: %w", err)
	}
	var ctx map[string]any
	if err := json.Unmarshal(raw, &ctx); err != nil {
		return nil, fmt.Errorf("decoding context: %w", err)
	}
	return ctx, nil
}
