// Command renderify-server exposes the RuntimePlan executor over HTTP/2
// with cleartext fallback (h2c), grounded on InsightifyCore's cmd/api/main.go
// (flag.String port, godotenv, a CORS middleware wrapping an
// http.ServeMux, http2.Server+h2c.NewHandler). The teacher's server
// exposes connect-rpc handlers generated from a protobuf schema; renderify
// has no such generated package, so this entrypoint exposes the same
// render operation as a plain JSON POST endpoint instead.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"strings"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/google/uuid"

	"github.com/webllm/renderify/internal/app"
	"github.com/webllm/renderify/internal/config"
	"github.com/webllm/renderify/internal/executor"
	"github.com/webllm/renderify/internal/runtimeplan"
	"github.com/webllm/renderify/internal/statemachine"
)

type renderRequest struct {
	Plan          *runtimeplan.RuntimePlan   `json:"plan"`
	Context       map[string]any             `json:"context,omitempty"`
	Event         *statemachine.Event        `json:"event,omitempty"`
	StateOverride *runtimeplan.StateSnapshot `json:"stateOverride,omitempty"`
}

func main() {
	port := flag.String("port", ":8090", "server port")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("renderify-server: loading config: %v", err)
	}
	if *port != ":8090" {
		cfg.Port = *port
	}

	rt, err := app.NewRuntime(cfg)
	if err != nil {
		log.Fatalf("renderify-server: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealthz)
	mux.HandleFunc("/v1/render", handleRender(rt))

	h := withCORS(mux)

	log.Printf("renderify-server: listening on %s", cfg.Port)
	log.Fatal(http.ListenAndServe(cfg.Port, h2c.NewHandler(h, &http2.Server{})))
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
}

func handleRender(rt *executor.Runtime) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var in renderRequest
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if in.Plan == nil {
			http.Error(w, "plan is required", http.StatusBadRequest)
			return
		}
		if in.Plan.ID == "" {
			in.Plan.ID = uuid.New().String()
		}

		result, err := rt.Execute(r.Context(), executor.ExecuteRequest{
			Plan:          in.Plan,
			Context:       in.Context,
			Event:         in.Event,
			StateOverride: in.StateOverride,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(result)
	}
}

func writeError(w http.ResponseWriter, err error) {
	var abortErr *executor.AbortError
	status := http.StatusInternalServerError
	if errors.As(err, &abortErr) {
		status = http.StatusRequestTimeout
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": err.Error()})
}

// withCORS mirrors InsightifyCore's cmd/api/main.go CORS middleware.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Authorization")
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}
