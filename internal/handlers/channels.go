package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/telhawk-systems/telhawk-dispatch/internal/httputil"
	"github.com/telhawk-systems/telhawk-dispatch/internal/models"
	"github.com/telhawk-systems/telhawk-dispatch/internal/stream"
)

// ChannelsHandler handles /api/v1/channels routes
func (h *Handler) ChannelsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.ListChannels(w, r)
	case http.MethodPost:
		h.CreateChannel(w, r)
	default:
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// ChannelHandler handles /api/v1/channels/{id} routes
func (h *Handler) ChannelHandler(w http.ResponseWriter, r *http.Request) {
	id := extractIDFromPath(r.URL.Path, "/api/v1/channels")
	if id == "" {
		httputil.WriteError(w, http.StatusBadRequest, "channel ID required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.GetChannel(w, r, id)
	case http.MethodDelete:
		h.CloseChannel(w, r, id)
	default:
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// CreateChannel handles POST /api/v1/channels
func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	var req stream.CreateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	channel, err := h.router.CreateChannel(req)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, channel)
}

// ListChannels handles GET /api/v1/channels
func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"channels": h.router.Channels(),
	})
}

// GetChannel handles GET /api/v1/channels/{id}
func (h *Handler) GetChannel(w http.ResponseWriter, r *http.Request, id string) {
	channel, ok := h.router.Channel(id)
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, "channel not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, channel)
}

// CloseChannel handles DELETE /api/v1/channels/{id}
func (h *Handler) CloseChannel(w http.ResponseWriter, r *http.Request, id string) {
	if !h.router.CloseChannel(id) {
		httputil.WriteError(w, http.StatusNotFound, "channel not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"closed": true})
}

// UpdateFiltersHandler handles PUT /api/v1/channels/{id}/filters
func (h *Handler) UpdateFiltersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/v1/channels")
	if id == "" {
		httputil.WriteError(w, http.StatusBadRequest, "channel ID required")
		return
	}

	var req struct {
		Filters []models.Filter `json:"filters"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := stream.ValidateFilters(req.Filters); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !h.router.UpdateFilters(id, req.Filters) {
		httputil.WriteError(w, http.StatusNotFound, "channel not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

// ChannelMetricsHandler handles GET /api/v1/channels/{id}/metrics
func (h *Handler) ChannelMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/v1/channels")
	metrics, ok := h.router.Metrics(id)
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, "channel not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, metrics)
}

// ThrottleHandler handles GET /api/v1/consumers/{id}/throttle
func (h *Handler) ThrottleHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/v1/consumers")
	if id == "" {
		httputil.WriteError(w, http.StatusBadRequest, "consumer ID required")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, h.advisor.RecommendRate(id))
}

// ConsumerChannelsHandler handles /api/v1/consumers/{id}/channels
func (h *Handler) ConsumerChannelsHandler(w http.ResponseWriter, r *http.Request) {
	id := extractIDFromPath(r.URL.Path, "/api/v1/consumers")
	if id == "" {
		httputil.WriteError(w, http.StatusBadRequest, "consumer ID required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"metrics": h.router.ConsumerMetrics(id),
		})
	case http.MethodDelete:
		closed := h.router.CloseAllForConsumer(id)
		httputil.WriteJSON(w, http.StatusOK, map[string]int{"closed": closed})
	default:
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// ProcessEventHandler handles POST /api/v1/events/process, pushing one event
// through the stream router directly. NATS intake is the normal path; this
// exists for integration testing and backfill.
func (h *Handler) ProcessEventHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var event models.EventRecord
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if event.Type == "" {
		httputil.WriteError(w, http.StatusBadRequest, "event type is required")
		return
	}

	routed := h.router.ProcessEvent(r.Context(), &event)
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"routed": routed,
	})
}
