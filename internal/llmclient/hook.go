package llmclient

import (
	"context"
	"encoding/json"
)

// Hook observes the unary calls a Client makes. Providers call Before once
// per GenerateResponse call, before its first attempt, and After once when
// that call ends, with either the raw response body or the error that ended
// it; retries inside the call are not reported separately. Streaming and
// structured calls do not report to the hook, except where a provider builds
// them on its own GenerateResponse (the Anthropic structured call and the
// Google stream).
type Hook interface {
	Before(ctx context.Context, phase, prompt string, input any)
	After(ctx context.Context, phase string, raw json.RawMessage, err error)
}

type ctxKeyHook struct{}
type ctxKeyPhase struct{}

// WithHook wraps base so every call carries hook in its context.
func WithHook(base Client, hook Hook) Client {
	return &hooked{base: base, hook: hook}
}

type hooked struct {
	base Client
	hook Hook
}

func (h *hooked) Configure(options map[string]any) { h.base.Configure(options) }

func (h *hooked) SetPromptTemplate(name, template string) { h.base.SetPromptTemplate(name, template) }
func (h *hooked) GetPromptTemplate(name string) (string, bool) {
	return h.base.GetPromptTemplate(name)
}

func (h *hooked) GenerateResponse(ctx context.Context, req Request) (Response, error) {
	ctx = context.WithValue(ctx, ctxKeyHook{}, h.hook)
	return h.base.GenerateResponse(ctx, req)
}

func (h *hooked) GenerateResponseStream(ctx context.Context, req Request) (Stream, error) {
	ctx = context.WithValue(ctx, ctxKeyHook{}, h.hook)
	return h.base.GenerateResponseStream(ctx, req)
}

func (h *hooked) GenerateStructuredResponse(ctx context.Context, req Request, format string) (StructuredResponse, error) {
	ctx = context.WithValue(ctx, ctxKeyHook{}, h.hook)
	return h.base.GenerateStructuredResponse(ctx, req, format)
}

// WithPhase tags ctx with a phase label that a Hook can read back via
// PhaseFrom; callers upstream of the module loader / executor use it to
// distinguish e.g. "resolve" calls from "render" calls in the same trace.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, ctxKeyPhase{}, phase)
}

// HookFrom returns the Hook attached to ctx, or nil.
func HookFrom(ctx context.Context) Hook {
	if v := ctx.Value(ctxKeyHook{}); v != nil {
		if h, ok := v.(Hook); ok {
			return h
		}
	}
	return nil
}

// PhaseFrom returns the phase label attached to ctx, or "unknown".
func PhaseFrom(ctx context.Context) string {
	if v := ctx.Value(ctxKeyPhase{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return "unknown"
}
