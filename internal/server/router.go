// Package server provides HTTP server setup for the dispatch service.
package server

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/telhawk-dispatch/internal/handlers"
	"github.com/telhawk-systems/telhawk-dispatch/internal/middleware"
)

// NewRouter constructs a ServeMux with dispatch API routes registered.
// Operator routes under /api/v1 sit behind bearer auth when a secret is
// configured; health and metrics stay open.
func NewRouter(h *handlers.Handler, jwtSecret string) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoints
	mux.HandleFunc("/healthz", h.HealthCheck)
	mux.HandleFunc("/readyz", h.ReadyCheck)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	api := http.NewServeMux()

	// Stream channel routes
	api.HandleFunc("/api/v1/channels", h.ChannelsHandler)
	api.HandleFunc("/api/v1/channels/", channelRouteHandler(h))

	// Consumer routes
	api.HandleFunc("/api/v1/consumers/", consumerRouteHandler(h))

	// Webhook endpoint routes
	api.HandleFunc("/api/v1/endpoints", h.EndpointsHandler)
	api.HandleFunc("/api/v1/endpoints/", endpointRouteHandler(h))

	// Delivery routes
	api.HandleFunc("/api/v1/deliveries", h.DeliveriesHandler)
	api.HandleFunc("/api/v1/deliveries/retry", h.RetryFailedHandler)

	// Stats and event intake
	api.HandleFunc("/api/v1/stats", h.StatsHandler)
	api.HandleFunc("/api/v1/events", h.TriggerEventHandler)
	api.HandleFunc("/api/v1/events/process", h.ProcessEventHandler)

	mux.Handle("/api/v1/", middleware.BearerAuth(jwtSecret)(api))

	return middleware.RequestID(mux)
}

// channelRouteHandler routes /api/v1/channels/{id}/* requests to appropriate handlers
func channelRouteHandler(h *handlers.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		switch {
		case strings.HasSuffix(path, "/filters"):
			h.UpdateFiltersHandler(w, r)
		case strings.HasSuffix(path, "/metrics"):
			h.ChannelMetricsHandler(w, r)
		default:
			h.ChannelHandler(w, r)
		}
	}
}

// consumerRouteHandler routes /api/v1/consumers/{id}/* requests to appropriate handlers
func consumerRouteHandler(h *handlers.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		switch {
		case strings.HasSuffix(path, "/throttle"):
			h.ThrottleHandler(w, r)
		case strings.HasSuffix(path, "/channels"):
			h.ConsumerChannelsHandler(w, r)
		default:
			http.NotFound(w, r)
		}
	}
}

// endpointRouteHandler routes /api/v1/endpoints/{id}/* requests to appropriate handlers
func endpointRouteHandler(h *handlers.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		switch {
		case strings.HasSuffix(path, "/test"):
			h.TestEndpointHandler(w, r)
		case strings.HasSuffix(path, "/deliveries"):
			h.EndpointDeliveriesHandler(w, r)
		case strings.HasSuffix(path, "/retry"):
			h.EndpointRetryHandler(w, r)
		default:
			h.EndpointHandler(w, r)
		}
	}
}
