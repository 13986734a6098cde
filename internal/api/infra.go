package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the infrastructure observation routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/infra", func(r chi.Router) {
		r.Get("/containers", h.listContainers)
		r.Get("/containers/{id}/logs", h.containerLogs)
		r.Get("/containers/{id}/metrics", h.containerMetrics)
		r.Get("/endpoints", h.listEndpoints)
	})
}

func (h *Handler) listContainers(w http.ResponseWriter, r *http.Request) {
	containers, err := h.obs.ListContainers(r.Context())
	if err != nil {
		Error(w, http.StatusBadGateway, "failed to list containers")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"containers": containers})
}

func (h *Handler) containerLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tail := 0
	if v := r.URL.Query().Get("tail"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			tail = n
		}
	}

	logs, err := h.obs.Logs(r.Context(), id, tail)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			Error(w, http.StatusNotFound, err.Error())
			return
		}
		Error(w, http.StatusBadGateway, "failed to fetch logs")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"container": id, "logs": logs})
}

func (h *Handler) containerMetrics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	metrics, err := h.obs.Metrics(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			Error(w, http.StatusNotFound, err.Error())
			return
		}
		Error(w, http.StatusBadGateway, "failed to fetch metrics")
		return
	}
	JSON(w, http.StatusOK, metrics)
}

func (h *Handler) listEndpoints(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.obs.Endpoints(r.Context())
	if err != nil {
		Error(w, http.StatusBadGateway, "failed to list endpoints")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"endpoints": endpoints})
}
