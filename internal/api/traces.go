package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/avesely/opsdeck/internal/identity"
)

const maxTraceListLimit = 200

// RegisterTraceRoutes registers the turn trace routes.
func (h *Handler) RegisterTraceRoutes(r chi.Router) {
	r.Get("/api/traces", h.listTraces)
}

// listTraces returns recent turn traces for the caller's tab session.
func (h *Handler) listTraces(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	if r.URL.Query().Get("all") == "true" {
		sessionID = ""
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			Error(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	if limit > maxTraceListLimit {
		limit = maxTraceListLimit
	}

	traces, err := h.repo.ListTraces(r.Context(), sessionID, limit)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to list traces")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"traces": traces})
}
