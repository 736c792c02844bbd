// Package app wires the execution-core collaborators (module loader,
// transpiler, sandbox dispatcher, plan store) into a single
// *executor.Runtime from an *config.Config, shared by cmd/renderify and
// cmd/renderify-server so neither entrypoint duplicates the wiring.
package app

import (
	"fmt"
	"time"

	"github.com/webllm/renderify/internal/artifactstore"
	"github.com/webllm/renderify/internal/config"
	"github.com/webllm/renderify/internal/executor"
	"github.com/webllm/renderify/internal/moduleloader"
	"github.com/webllm/renderify/internal/planstore"
	"github.com/webllm/renderify/internal/rplog"
	"github.com/webllm/renderify/internal/sandbox"
	"github.com/webllm/renderify/internal/transpiler"
)

// NewRuntime builds an *executor.Runtime from cfg: an HTTP+file module
// loader, a transpiler with its default cache, a capability dispatcher
// seeded with cfg's default sandbox mode, and a plan-state store (Postgres
// when cfg.PlanStoreDSN is set, in-memory otherwise).
func NewRuntime(cfg *config.Config) (*executor.Runtime, error) {
	loader, err := moduleloader.New(256,
		moduleloader.WithFetchers(moduleloader.NewHTTPFetcher(), &moduleloader.FileFetcher{Root: "."}),
		moduleloader.WithHedgeStagger(150*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("app: module loader: %w", err)
	}

	rt := executor.NewRuntime(loader, transpiler.New())
	rt.Dispatcher = sandbox.NewDispatcher()
	rt.Logger = rplog.New("executor", nil)
	rt.Artifacts = newArtifactStore(cfg.ArtifactStore)

	// "ignore" keeps FailOnPreflightError false: probes still run and log,
	// they just never short-circuit the render walk.
	rt.FailOnPreflightError = cfg.DepsUsageMode == "error"

	if cfg.PlanStoreDSN != "" {
		store, err := planstore.OpenPostgresStore(cfg.PlanStoreDSN)
		if err != nil {
			return nil, fmt.Errorf("app: plan store: %w", err)
		}
		rt.Store = store
	} else {
		rt.Store = planstore.NewMemoryStore(1024, 3600)
	}

	executor.DefaultCapabilities.SandboxMode = cfg.DefaultSandbox
	executor.DefaultCapabilities.MaxRenderBudget = time.Duration(cfg.RenderBudgetMs) * time.Millisecond

	return rt, nil
}

// newArtifactStore resolves the result-artifact sink from cfg.ArtifactStore:
// a cached minio-backed store when S3 credentials are present, a local disk
// store rooted at ./artifacts when the feature is enabled without S3
// credentials (local dev), or nil to disable persistence entirely.
func newArtifactStore(cfg config.ArtifactConfig) artifactstore.Store {
	if cfg.CanUseS3() {
		origin, err := artifactstore.NewS3Store(artifactstore.S3Config{
			Endpoint:  cfg.Endpoint,
			Region:    cfg.Region,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			UseSSL:    cfg.UseSSL,
		})
		if err != nil {
			return nil
		}
		return artifactstore.NewCachedStore(origin, artifactstore.DefaultCacheConfig())
	}
	if cfg.Enabled {
		return artifactstore.NewCachedStore(artifactstore.NewDiskStore("artifacts"), artifactstore.DefaultCacheConfig())
	}
	return nil
}
