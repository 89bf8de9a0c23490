// Package api exposes the guard pipeline over HTTP: an authenticated
// evaluate endpoint for gateway callers plus admin CRUD for routes and
// API keys.
package api

import (
	"net/http"
	"time"

	"github.com/unitone-ai/rampart/internal/config"
	"github.com/unitone-ai/rampart/internal/storage"
	"github.com/unitone-ai/rampart/internal/store"
	"go.uber.org/zap"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Provider *config.Provider
	Store    *store.Store // nil when running from a YAML file
	Writer   storage.EventWriter
	Logger   *zap.Logger
	CacheTTL time.Duration
	// StaticKey authenticates callers when no Postgres store is
	// configured. Empty disables the fallback entirely.
	StaticKey string
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Evaluate endpoint (auth required via Bearer rgk_ token)
	mux.HandleFunc("POST /v1/guard", deps.authMiddleware(deps.handleEvaluate))

	// Session teardown: drop per-session guard state
	mux.HandleFunc("DELETE /v1/sessions/{scope_key}", deps.authMiddleware(deps.handleReleaseSession))

	// Route CRUD (no auth — dashboard auth added later)
	mux.HandleFunc("POST /api/rampart/routes", deps.handleCreateRoute)
	mux.HandleFunc("GET /api/rampart/routes", deps.handleListRoutes)
	mux.HandleFunc("GET /api/rampart/routes/{name}", deps.handleGetRoute)
	mux.HandleFunc("PATCH /api/rampart/routes/{name}", deps.handleUpdateRoute)
	mux.HandleFunc("DELETE /api/rampart/routes/{name}", deps.handleDeleteRoute)

	// API key CRUD (no auth)
	mux.HandleFunc("POST /api/rampart/keys", deps.handleCreateKey)
	mux.HandleFunc("GET /api/rampart/keys", deps.handleListKeys)
	mux.HandleFunc("DELETE /api/rampart/keys/{id}", deps.handleRevokeKey)

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
