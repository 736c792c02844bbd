package moduleloader

import (
	"context"
	"testing"

	"github.com/webllm/renderify/internal/runtimeplan"
)

type countingFetcher struct {
	calls int
	data  []byte
}

func (f *countingFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	f.calls++
	return f.data, nil
}

func TestLoader_ResolveCachesBySpecifierAndVersion(t *testing.T) {
	fetcher := &countingFetcher{data: []byte("widget source")}
	l, err := New(8, WithFetchers(fetcher))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry := runtimeplan.ManifestEntry{Specifier: "widget.tsx", Version: "1.0.0"}
	for i := 0; i < 3; i++ {
		mod, err := l.Resolve(context.Background(), entry)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(mod.Source) != "widget source" {
			t.Fatalf("unexpected source: %q", mod.Source)
		}
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected 1 underlying fetch, got %d", fetcher.calls)
	}
	if l.Len() != 1 {
		t.Fatalf("expected 1 cached module, got %d", l.Len())
	}
}

func TestLoader_ResolveVerifiesPinnedIntegrity(t *testing.T) {
	data := []byte("pinned source")
	fetcher := &countingFetcher{data: data}
	l, err := New(8, WithFetchers(fetcher))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	good := runtimeplan.ManifestEntry{
		Specifier: "pinned.tsx",
		Version:   "1.0.0",
		Integrity: sriFor(data),
		Pinned:    true,
	}
	if _, err := l.Resolve(context.Background(), good); err != nil {
		t.Fatalf("unexpected error for valid integrity: %v", err)
	}

	tampered := runtimeplan.ManifestEntry{
		Specifier: "tampered.tsx",
		Version:   "1.0.0",
		Integrity: sriFor([]byte("different content")),
		Pinned:    true,
	}
	if _, err := l.Resolve(context.Background(), tampered); err == nil {
		t.Fatalf("expected integrity mismatch error")
	}
}

func TestLoader_ResolveRejectsEmptySpecifier(t *testing.T) {
	l, err := New(8, WithFetchers(&countingFetcher{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := l.Resolve(context.Background(), runtimeplan.ManifestEntry{}); err == nil {
		t.Fatalf("expected error for empty specifier")
	}
}

func TestLoader_ResolveAllStopsAtFirstFailure(t *testing.T) {
	l, err := New(8, WithFetchers(&countingFetcher{data: []byte("ok")}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	manifest := []runtimeplan.ManifestEntry{
		{Specifier: "a.tsx", Version: "1.0.0"},
		{Specifier: "", Version: "1.0.0"},
	}
	if _, err := l.ResolveAll(context.Background(), manifest); err == nil {
		t.Fatalf("expected error from empty specifier entry")
	}
}
