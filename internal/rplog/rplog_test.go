package rplog

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestLogger_WarnIncludesLevelAndComponent(t *testing.T) {
	var buf bytes.Buffer
	std := log.New(&buf, "", 0)
	l := New("executor", std)

	l.Warn("unused dependency %q", "state.count")

	out := buf.String()
	if !strings.Contains(out, "WARN:") {
		t.Fatalf("expected WARN level prefix, got %q", out)
	}
	if !strings.Contains(out, "[executor]") {
		t.Fatalf("expected component tag, got %q", out)
	}
	if !strings.Contains(out, `"state.count"`) {
		t.Fatalf("expected formatted message, got %q", out)
	}
}

func TestLogger_WithScopesSubComponent(t *testing.T) {
	var buf bytes.Buffer
	std := log.New(&buf, "", 0)
	l := New("llmclient", std).With("openai")

	l.Error("request failed: %v", "timeout")

	if !strings.Contains(buf.String(), "[llmclient.openai]") {
		t.Fatalf("expected scoped component tag, got %q", buf.String())
	}
}
