package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/webllm/renderify/internal/executor"
	"github.com/webllm/renderify/internal/moduleloader"
	"github.com/webllm/renderify/internal/transpiler"
)

func TestHandleHealthz_ReturnsOK(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handleHealthz(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleHealthz_RejectsNonGET(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	rec := httptest.NewRecorder()
	handleHealthz(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func jsonBody(s string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(s))
}

func TestHandleRender_RejectsMissingPlan(t *testing.T) {
	loader, err := moduleloader.New(8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rt := executor.NewRuntime(loader, transpiler.New())

	req := httptest.NewRequest(http.MethodPost, "/v1/render", jsonBody(`{}`))
	rec := httptest.NewRecorder()
	handleRender(rt)(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleRender_RendersTextPlan(t *testing.T) {
	loader, err := moduleloader.New(8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rt := executor.NewRuntime(loader, transpiler.New())

	body := `{"plan":{"id":"p1","root":{"id":"n1","type":"text","text":{"value":"hello"}},"capabilities":{}}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/render", jsonBody(body))
	rec := httptest.NewRecorder()
	handleRender(rt)(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestWithCORS_AddsHeadersAndShortCircuitsOptions(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	handler := withCORS(next)

	req := httptest.NewRequest(http.MethodOptions, "/v1/render", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if called {
		t.Fatalf("expected OPTIONS to short-circuit before reaching next handler")
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://example.com" {
		t.Fatalf("expected origin echoed back, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}
