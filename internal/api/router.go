package api

import (
	"net/http"

	"github.com/meridian-os/appscope/internal/filter"
	"github.com/meridian-os/appscope/internal/storage"
	"github.com/meridian-os/appscope/internal/store"
	"go.uber.org/zap"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	State  *store.MemState
	Filter *filter.Filter
	Writer storage.EventWriter
	Logger *zap.Logger

	// AdminTokenHash is the bcrypt hash the Authorization bearer token is
	// verified against.
	AdminTokenHash string
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Query surface
	mux.HandleFunc("POST /v1/visibility/check", deps.authMiddleware(deps.handleCheck))
	mux.HandleFunc("POST /v1/visibility/grant", deps.authMiddleware(deps.handleGrant))
	mux.HandleFunc("GET /v1/visibility/whitelist/{package}", deps.authMiddleware(deps.handleWhitelist))

	// Package lifecycle
	mux.HandleFunc("POST /api/appscope/packages", deps.authMiddleware(deps.handleAddPackage))
	mux.HandleFunc("DELETE /api/appscope/packages/{package}", deps.authMiddleware(deps.handleRemovePackage))
	mux.HandleFunc("PUT /api/appscope/users", deps.authMiddleware(deps.handleUsersChanged))

	// Diagnostics
	mux.HandleFunc("GET /api/appscope/queries", deps.authMiddleware(deps.handleDumpQueries))
	mux.HandleFunc("POST /api/appscope/logging", deps.authMiddleware(deps.handleLogging))

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return requestLogging(mux, deps.Logger)
}
