// Package config loads process configuration from RENDERIFY_* environment
// variables, with optional .env file support.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/webllm/renderify/internal/reliability"
)

// Config is the resolved process configuration.
type Config struct {
	Env          string
	Port         string
	LLMProvider  string
	LLMModel     string
	LLMAPIKey    string
	OllamaHost   string
	LMStudioHost string

	Reliability reliability.Config

	PlanStoreDSN    string
	ArtifactStore   ArtifactConfig
	DepsUsageMode   string
	DefaultSandbox  string
	RenderBudgetMs  int
}

// ArtifactConfig configures the optional durable snapshot sink, mirroring
// InsightifyCore's ArtifactConfig shape (minio/S3-compatible endpoint).
type ArtifactConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// CanUseS3 reports whether enough fields are populated to construct a
// minio client, mirroring InsightifyCore's ArtifactConfig.CanUseS3.
func (c ArtifactConfig) CanUseS3() bool {
	if !c.Enabled {
		return false
	}
	return strings.TrimSpace(c.Endpoint) != "" &&
		strings.TrimSpace(c.AccessKey) != "" &&
		strings.TrimSpace(c.SecretKey) != "" &&
		strings.TrimSpace(c.Bucket) != ""
}

// Load reads RENDERIFY_* environment variables, first attempting to load a
// .env file via godotenv (a missing .env is not an error, matching the
// teacher's `_ = godotenv.Load()` pattern).
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := firstNonEmpty(os.Getenv("RENDERIFY_ENV"), "local")
	port := firstNonEmpty(os.Getenv("RENDERIFY_PORT"), ":8090")

	return &Config{
		Env:          env,
		Port:         port,
		LLMProvider:  firstNonEmpty(os.Getenv("RENDERIFY_LLM_PROVIDER"), "mock"),
		LLMModel:     os.Getenv("RENDERIFY_LLM_MODEL"),
		LLMAPIKey:    os.Getenv("RENDERIFY_LLM_API_KEY"),
		OllamaHost:   os.Getenv("OLLAMA_HOST"),
		LMStudioHost: os.Getenv("LMSTUDIO_HOST"),

		Reliability: loadReliability(),

		PlanStoreDSN:   os.Getenv("RENDERIFY_PLANSTORE_DSN"),
		ArtifactStore:  loadArtifactConfig(env),
		DepsUsageMode:  firstNonEmpty(os.Getenv("RENDERIFY_DEPS_USAGE"), "warn"),
		DefaultSandbox: firstNonEmpty(os.Getenv("RENDERIFY_SANDBOX_MODE"), "shadowrealm"),
		RenderBudgetMs: intOrDefault(os.Getenv("RENDERIFY_RENDER_BUDGET_MS"), 5000),
	}, nil
}

func loadReliability() reliability.Config {
	cfg := reliability.DefaultConfig()
	if v := intOrDefault(os.Getenv("RENDERIFY_MAX_RETRIES"), -1); v >= 0 {
		cfg.MaxRetries = v
	}
	if v := os.Getenv("RENDERIFY_COOLDOWN_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.CooldownMs = time.Duration(ms) * time.Millisecond
		}
	}
	return reliability.Resolve(cfg)
}

func loadArtifactConfig(env string) ArtifactConfig {
	endpoint := os.Getenv("RENDERIFY_ARTIFACT_ENDPOINT")
	useSSL := true
	if strings.EqualFold(env, "local") {
		endpoint = firstNonEmpty(endpoint, "localhost:9000")
		useSSL = false
	}
	return ArtifactConfig{
		Enabled:   endpoint != "",
		Endpoint:  endpoint,
		Region:    firstNonEmpty(os.Getenv("RENDERIFY_ARTIFACT_REGION"), "us-east-1"),
		AccessKey: os.Getenv("RENDERIFY_ARTIFACT_ACCESS_KEY"),
		SecretKey: os.Getenv("RENDERIFY_ARTIFACT_SECRET_KEY"),
		Bucket:    firstNonEmpty(os.Getenv("RENDERIFY_ARTIFACT_BUCKET"), "renderify-artifacts"),
		UseSSL:    boolOrDefault(os.Getenv("RENDERIFY_ARTIFACT_USE_SSL"), useSSL),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func intOrDefault(raw string, def int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func boolOrDefault(raw string, def bool) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}
