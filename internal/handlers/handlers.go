// Package handlers provides HTTP request handlers for the dispatch service.
package handlers

import (
	"net/http"
	"strings"

	"github.com/telhawk-systems/telhawk-dispatch/internal/httputil"
	"github.com/telhawk-systems/telhawk-dispatch/internal/stream"
	"github.com/telhawk-systems/telhawk-dispatch/internal/webhook"
)

// HealthResponse is the body of health and readiness checks.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// Handler provides HTTP handlers for the dispatch service
type Handler struct {
	router   *stream.Router
	advisor  *stream.ThrottleAdvisor
	registry *webhook.Registry
	engine   *webhook.Engine
	ready    func() bool
}

// NewHandler creates a new Handler instance
func NewHandler(router *stream.Router, advisor *stream.ThrottleAdvisor, registry *webhook.Registry, engine *webhook.Engine) *Handler {
	return &Handler{
		router:   router,
		advisor:  advisor,
		registry: registry,
		engine:   engine,
	}
}

// WithReadyCheck sets the readiness probe used by /readyz.
func (h *Handler) WithReadyCheck(ready func() bool) *Handler {
	h.ready = ready
	return h
}

// extractIDFromPath extracts an ID from a URL path like /api/v1/channels/{id}
func extractIDFromPath(path, prefix string) string {
	remaining := strings.TrimPrefix(path, prefix)
	remaining = strings.TrimPrefix(remaining, "/")

	parts := strings.Split(remaining, "/")
	if len(parts) > 0 {
		return parts[0]
	}
	return ""
}

// HealthCheck handles GET /healthz
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Service: "dispatch",
	})
}

// ReadyCheck handles GET /readyz
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil && !h.ready() {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:  "not ready",
			Service: "dispatch",
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, HealthResponse{
		Status:  "ready",
		Service: "dispatch",
	})
}
