package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/telhawk-systems/telhawk-dispatch/internal/httputil"
	"github.com/telhawk-systems/telhawk-dispatch/internal/webhook"
	"github.com/telhawk-systems/telhawk-dispatch/internal/webhook/repository"
)

// EndpointsHandler handles /api/v1/endpoints routes
func (h *Handler) EndpointsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.ListEndpoints(w, r)
	case http.MethodPost:
		h.RegisterEndpoint(w, r)
	default:
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// EndpointHandler handles /api/v1/endpoints/{id} routes
func (h *Handler) EndpointHandler(w http.ResponseWriter, r *http.Request) {
	id := extractIDFromPath(r.URL.Path, "/api/v1/endpoints")
	if id == "" {
		httputil.WriteError(w, http.StatusBadRequest, "endpoint ID required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.GetEndpoint(w, r, id)
	case http.MethodPut:
		h.UpdateEndpoint(w, r, id)
	case http.MethodDelete:
		h.DeleteEndpoint(w, r, id)
	default:
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// RegisterEndpoint handles POST /api/v1/endpoints
func (h *Handler) RegisterEndpoint(w http.ResponseWriter, r *http.Request) {
	var req webhook.RegisterEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	endpoint, err := h.registry.RegisterEndpoint(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The signing secret is returned once, at registration.
	httputil.WriteJSON(w, http.StatusCreated, endpoint)
}

// ListEndpoints handles GET /api/v1/endpoints
func (h *Handler) ListEndpoints(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.registry.ListEndpoints(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	for _, ep := range endpoints {
		ep.Secret = ""
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"endpoints": endpoints,
	})
}

// GetEndpoint handles GET /api/v1/endpoints/{id}
func (h *Handler) GetEndpoint(w http.ResponseWriter, r *http.Request, id string) {
	endpoint, err := h.registry.GetEndpoint(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if endpoint == nil {
		httputil.WriteError(w, http.StatusNotFound, "endpoint not found")
		return
	}

	endpoint.Secret = ""
	httputil.WriteJSON(w, http.StatusOK, endpoint)
}

// UpdateEndpoint handles PUT /api/v1/endpoints/{id}
func (h *Handler) UpdateEndpoint(w http.ResponseWriter, r *http.Request, id string) {
	var req webhook.UpdateEndpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	endpoint, err := h.registry.UpdateEndpoint(r.Context(), id, req)
	if errors.Is(err, repository.ErrEndpointNotFound) {
		httputil.WriteError(w, http.StatusNotFound, "endpoint not found")
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	endpoint.Secret = ""
	httputil.WriteJSON(w, http.StatusOK, endpoint)
}

// DeleteEndpoint handles DELETE /api/v1/endpoints/{id}
func (h *Handler) DeleteEndpoint(w http.ResponseWriter, r *http.Request, id string) {
	deleted, err := h.registry.DeleteEndpoint(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		httputil.WriteError(w, http.StatusNotFound, "endpoint not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// TestEndpointHandler handles POST /api/v1/endpoints/{id}/test
func (h *Handler) TestEndpointHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/v1/endpoints")
	result, err := h.engine.TestEndpoint(r.Context(), id)
	if errors.Is(err, webhook.ErrEndpointNotFound) {
		httputil.WriteError(w, http.StatusNotFound, "endpoint not found")
		return
	}
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// EndpointDeliveriesHandler handles GET /api/v1/endpoints/{id}/deliveries
func (h *Handler) EndpointDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/v1/endpoints")
	h.writeDeliveries(w, r, id)
}

// EndpointRetryHandler handles POST /api/v1/endpoints/{id}/retry
func (h *Handler) EndpointRetryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := extractIDFromPath(r.URL.Path, "/api/v1/endpoints")
	result, err := h.engine.RetryFailed(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// DeliveriesHandler handles GET /api/v1/deliveries
func (h *Handler) DeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	h.writeDeliveries(w, r, r.URL.Query().Get("endpoint_id"))
}

func (h *Handler) writeDeliveries(w http.ResponseWriter, r *http.Request, endpointID string) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.WriteError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	deliveries, err := h.engine.ListDeliveries(r.Context(), endpointID, limit)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"deliveries": deliveries,
	})
}

// RetryFailedHandler handles POST /api/v1/deliveries/retry
func (h *Handler) RetryFailedHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	result, err := h.engine.RetryFailed(r.Context(), r.URL.Query().Get("endpoint_id"))
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// StatsHandler handles GET /api/v1/stats
func (h *Handler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// TriggerEventHandler handles POST /api/v1/events
func (h *Handler) TriggerEventHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req webhook.TriggerEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	eventID, err := h.engine.TriggerEvent(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"event_id": eventID})
}
