// Package api provides HTTP handlers for the audience builder API.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/whizzbang/audience-builder/internal/catalog"
	"github.com/whizzbang/audience-builder/internal/session"
)

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

// HealthHandler reports process and catalog-store health.
type HealthHandler struct {
	lookup   catalog.Lookup
	registry *session.Registry
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(lookup catalog.Lookup, registry *session.Registry) *HealthHandler {
	return &HealthHandler{lookup: lookup, registry: registry}
}

// RegisterRoutes mounts the health endpoint on the router.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/health", h.handleHealth)
}

func (h *HealthHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	catalogStatus := "ok"
	status := http.StatusOK
	if err := h.lookup.Ping(ctx); err != nil {
		catalogStatus = "unreachable"
		status = http.StatusServiceUnavailable
	}

	JSON(w, status, map[string]interface{}{
		"status":        catalogStatus,
		"live_sessions": h.registry.Len(),
	})
}
