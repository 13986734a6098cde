// Package api provides HTTP handlers for the Opsdeck REST API.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/avesely/opsdeck/internal/infra"
	"github.com/avesely/opsdeck/internal/store"
)

// Handler provides common handler utilities and dependencies.
type Handler struct {
	repo store.Repository
	obs  *infra.Observer
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, obs *infra.Observer) *Handler {
	return &Handler{repo: repo, obs: obs}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// Readiness reports whether the database and the Docker daemon are reachable.
func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{
		"database": "ok",
		"docker":   "ok",
	}
	status := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := h.obs.Ping(ctx); err != nil {
		checks["docker"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	JSON(w, status, map[string]any{"checks": checks})
}

// RegisterHealth registers the readiness route. Liveness is served by the
// router's heartbeat middleware.
func (h *Handler) RegisterHealth(r chi.Router) {
	r.Get("/ready", h.Readiness)
}
