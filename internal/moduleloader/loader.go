package moduleloader

import (
	"context"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/webllm/renderify/internal/runtimeplan"
)

// Module is a resolved, integrity-checked module: its raw fetched bytes
// (what the transpiler/executor consume as source text) alongside the
// resolved URL and the materialized ESM form spec §4.5 describes (the form
// a real browser's module graph would import — a data: URL for JS, an ESM
// style-proxy for CSS, a default-export wrapper for JSON).
type Module struct {
	Specifier    string
	Version      string
	Source       []byte
	ResolvedURL  string
	ContentKind  ContentKind
	Materialized string
}

// Loader resolves RuntimePlan manifest entries to Modules, caching
// materialized results by specifier+version so repeated references to the
// same component across a plan tree fetch once.
//
// The cache is a plain LRU (no TTL): once a specifier+version has been
// integrity-verified, its bytes are immutable for the lifetime of the
// process, so there is nothing to expire. This uses
// github.com/hashicorp/golang-lru/v2 directly — InsightifyCore's own
// projectstore caches (internal/gateway/repository/projectstore,
// internal/gateway/repository/project) reach for this exact library for
// equivalent immutable-by-key caching, so it is wired here under its own
// domain rather than reimplemented as a second LRU alongside cachex.
type Loader struct {
	fetchers        []Fetcher
	stagger         time.Duration
	cache           *lru.Cache[string, Module]
	cdnBase         string
	network         NetworkPolicy
	enforceManifest bool
}

// Option customizes a new Loader.
type Option func(*Loader)

// WithFetchers overrides the default (HTTP + relative file) fetcher chain.
func WithFetchers(fetchers ...Fetcher) Option {
	return func(l *Loader) { l.fetchers = fetchers }
}

// WithHedgeStagger sets the delay between successive hedge attempts.
func WithHedgeStagger(d time.Duration) Option {
	return func(l *Loader) { l.stagger = d }
}

// WithCDNBase overrides the default jspm.io CDN used to resolve bare and
// npm: specifiers.
func WithCDNBase(base string) Option {
	return func(l *Loader) { l.cdnBase = base }
}

// WithNetworkPolicy gates which resolved URLs Resolve is willing to fetch.
// The default policy allows arbitrary hosts, matching InsightifyCore's
// permissive fetch behavior; callers running untrusted plans should pass an
// allowlisted policy explicitly.
func WithNetworkPolicy(p NetworkPolicy) Option {
	return func(l *Loader) { l.network = p }
}

// WithEnforceManifest makes a bare/npm specifier with no manifest entry
// fatal (RUNTIME_MANIFEST_MISSING) instead of silently resolving through the
// default CDN. Runtime aliases (preact, react compat) still resolve even
// when this is set.
func WithEnforceManifest(enforce bool) Option {
	return func(l *Loader) { l.enforceManifest = enforce }
}

// New creates a Loader with a namespace cache bounded to maxModules entries.
func New(maxModules int, opts ...Option) (*Loader, error) {
	if maxModules <= 0 {
		maxModules = 256
	}
	cache, err := lru.New[string, Module](maxModules)
	if err != nil {
		return nil, fmt.Errorf("moduleloader: building cache: %w", err)
	}
	l := &Loader{
		fetchers: []Fetcher{NewHTTPFetcher()},
		stagger:  50 * time.Millisecond,
		cache:    cache,
		cdnBase:  defaultCDNBase,
		network:  NetworkPolicy{AllowArbitraryNetwork: true},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// ErrManifestMissing is wrapped into the error Resolve returns when
// enforceManifest is set and entry carries neither a ResolvedUrl nor a
// resolvable alias. Callers map this to RUNTIME_MANIFEST_MISSING.
var ErrManifestMissing = fmt.Errorf("moduleloader: manifest entry missing resolvedUrl")

func cacheKey(entry runtimeplan.ManifestEntry) string {
	return entry.Specifier + "@" + entry.Version
}

// Resolve fetches and integrity-checks entry, serving from cache when
// available. An entry.ResolvedUrl always takes precedence over re-deriving
// one from the specifier — this is the precedence autopin and an
// already-pinned manifest both rely on. With no ResolvedUrl, well-known
// runtime packages resolve through a fixed alias table and absolute/data
// URLs are fetched as they are. Bare/npm specifiers resolve through the
// configured CDN, except that they are fatal when enforceManifest is set;
// local paths and rejected schemes are fatal when enforceManifest is set,
// otherwise the specifier itself is treated as the fetch target, matching
// InsightifyCore's permissive default.
func (l *Loader) Resolve(ctx context.Context, entry runtimeplan.ManifestEntry) (Module, error) {
	specifier := strings.TrimSpace(entry.Specifier)
	if specifier == "" {
		return Module{}, fmt.Errorf("moduleloader: empty specifier")
	}
	key := cacheKey(entry)
	if cached, ok := l.cache.Get(key); ok {
		return cached, nil
	}

	resolvedURL := entry.ResolvedUrl
	if resolvedURL == "" {
		class := ClassifySpecifier(specifier)
		switch class {
		case ClassLocalPath, ClassRejected:
			if l.enforceManifest {
				return Module{}, fmt.Errorf("moduleloader: %s: %w", specifier, ErrManifestMissing)
			}
			resolvedURL = specifier
		default:
			if l.enforceManifest && (class == ClassBareNPM || class == ClassNPMPrefix) {
				return Module{}, fmt.Errorf("moduleloader: %s: %w", specifier, ErrManifestMissing)
			}
			u, _, err := ResolveSpecifier(specifier, l.cdnBase)
			if err != nil {
				if l.enforceManifest {
					return Module{}, fmt.Errorf("moduleloader: %s: %w: %v", specifier, ErrManifestMissing, err)
				}
				resolvedURL = specifier
			} else {
				resolvedURL = u
			}
		}
	}

	if err := l.network.Check(resolvedURL); err != nil {
		return Module{}, fmt.Errorf("moduleloader: %s: %w", specifier, err)
	}

	data, err := HedgedFetch(ctx, resolvedURL, l.fetchers, l.stagger)
	if err != nil {
		return Module{}, err
	}
	if entry.Pinned {
		if err := VerifyIntegrity(data, entry.Integrity); err != nil {
			return Module{}, fmt.Errorf("moduleloader: %s: %w", specifier, err)
		}
	}

	kind := ClassifyContent(resolvedURL)
	mod := Module{
		Specifier:    specifier,
		Version:      entry.Version,
		Source:       data,
		ResolvedURL:  resolvedURL,
		ContentKind:  kind,
		Materialized: Materialize(kind, data),
	}
	l.cache.Add(key, mod)
	return mod, nil
}

// ResolveAll resolves every manifest entry, stopping at the first error and
// reporting which specifier failed.
func (l *Loader) ResolveAll(ctx context.Context, manifest []runtimeplan.ManifestEntry) (map[string]Module, error) {
	out := make(map[string]Module, len(manifest))
	for _, entry := range manifest {
		mod, err := l.Resolve(ctx, entry)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", entry.Specifier, err)
		}
		out[entry.Specifier] = mod
	}
	return out, nil
}

// Len reports the number of modules currently cached.
func (l *Loader) Len() int {
	return l.cache.Len()
}
