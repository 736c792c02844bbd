package transpiler

import (
	"context"
	"strings"
	"testing"
)

func TestTranspile_JSPassesThroughUnchanged(t *testing.T) {
	tr := New()
	code := `const x = 1 + 2;`
	out, err := tr.Transpile(context.Background(), Input{Code: code, Language: "js"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != code {
		t.Fatalf("expected js passthrough, got %q", out)
	}
}

func TestTranspile_SimpleElementCompilesToClassicFactoryCall(t *testing.T) {
	tr := New()
	out, err := tr.Transpile(context.Background(), Input{
		Code:     `<div className="panel">Hello</div>`,
		Language: "jsx",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, ClassicFactory+`("div"`) {
		t.Fatalf("expected classic factory call for div, got %q", out)
	}
	if !strings.Contains(out, `className: "panel"`) {
		t.Fatalf("expected className prop preserved, got %q", out)
	}
	if !strings.Contains(out, `"Hello"`) {
		t.Fatalf("expected text child preserved, got %q", out)
	}
	if !strings.Contains(out, "function "+ClassicFactory) {
		t.Fatalf("expected classic prelude merged in, got %q", out)
	}
}

func TestTranspile_PascalCaseTagStaysAsSpecifierString(t *testing.T) {
	tr := New()
	out, err := tr.Transpile(context.Background(), Input{
		Code:     `<ChatPanel title="hi" />`,
		Language: "jsx",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, ClassicFactory+`("ChatPanel"`) {
		t.Fatalf("expected component tag preserved as string literal, got %q", out)
	}
}

func TestTranspile_NestedChildrenPreserveOrder(t *testing.T) {
	tr := New()
	out, err := tr.Transpile(context.Background(), Input{
		Code:     `<div><span>a</span><span>b</span></div>`,
		Language: "jsx",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	aIdx := strings.Index(out, `"a"`)
	bIdx := strings.Index(out, `"b"`)
	if aIdx == -1 || bIdx == -1 || aIdx > bIdx {
		t.Fatalf("expected a before b in output, got %q", out)
	}
}

func TestTranspile_ExpressionChildIsSplicedRaw(t *testing.T) {
	tr := New()
	out, err := tr.Transpile(context.Background(), Input{
		Code:     `<div>{user.name}</div>`,
		Language: "jsx",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "user.name") {
		t.Fatalf("expected expression child spliced verbatim, got %q", out)
	}
}

func TestTranspile_PreactRuntimeUsesAutomaticImportNotClassicPrelude(t *testing.T) {
	tr := New()
	out, err := tr.Transpile(context.Background(), Input{
		Code:     `<div>hi</div>`,
		Language: "jsx",
		Runtime:  "preact",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `from "preact/jsx-runtime"`) {
		t.Fatalf("expected preact automatic-runtime import, got %q", out)
	}
	if strings.Contains(out, "function "+ClassicFactory) {
		t.Fatalf("classic prelude must never be merged for preact runtime, got %q", out)
	}
	if !strings.Contains(out, `_jsx("div"`) {
		t.Fatalf("expected _jsx call, got %q", out)
	}
}

func TestTranspile_TSStripsTypeAnnotations(t *testing.T) {
	tr := New()
	out, err := tr.Transpile(context.Background(), Input{
		Code:     `function add(a: number, b: number): number { return a + b; }`,
		Language: "ts",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(out, "number") {
		t.Fatalf("expected type annotations stripped, got %q", out)
	}
}

func TestTranspile_NoJSXInJSXSourceIsError(t *testing.T) {
	tr := New()
	_, err := tr.Transpile(context.Background(), Input{Code: `const notJSX = 1;`, Language: "jsx"})
	if err == nil {
		t.Fatalf("expected error for jsx-language source with no JSX")
	}
}

func TestTranspile_UnsupportedLanguageIsError(t *testing.T) {
	tr := New()
	_, err := tr.Transpile(context.Background(), Input{Code: `<div/>`, Language: "svelte"})
	if err == nil {
		t.Fatalf("expected error for unsupported language")
	}
}

func TestTranspile_CachesIdenticalInput(t *testing.T) {
	tr := New()
	in := Input{Code: `<div>cached</div>`, Language: "jsx"}
	out1, err := tr.Transpile(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out2, err := tr.Transpile(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out1 != out2 {
		t.Fatalf("expected identical input to hit cache and return identical output")
	}
}
