package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/telhawk-dispatch/internal/handlers"
	"github.com/telhawk-systems/telhawk-dispatch/internal/middleware"
	"github.com/telhawk-systems/telhawk-dispatch/internal/models"
	"github.com/telhawk-systems/telhawk-dispatch/internal/stream"
	"github.com/telhawk-systems/telhawk-dispatch/internal/webhook"
	"github.com/telhawk-systems/telhawk-dispatch/internal/webhook/repository"
	"github.com/telhawk-systems/telhawk-dispatch/internal/webhook/store"
)

type stubTransport struct {
	status int
}

func (s *stubTransport) Deliver(ctx context.Context, req *webhook.Request) (*webhook.Result, error) {
	return &webhook.Result{StatusCode: s.status, Duration: time.Millisecond}, nil
}

func newTestServer(t *testing.T, jwtSecret string) http.Handler {
	t.Helper()

	scorer := stream.NewRelevanceScorer(stream.DefaultRelevanceConfig(), nil)
	router := stream.NewRouter(scorer, nil, nil)
	aggregator := stream.NewAggregator(nil, 100, router.RecordAggregated, nil)
	t.Cleanup(aggregator.Close)
	router.SetAggregator(aggregator)
	advisor := stream.NewThrottleAdvisor(router, stream.DefaultThrottleConfig())

	deliveries := store.NewMemoryStore(0)
	registry := webhook.NewRegistry(repository.NewMemoryRepository(), deliveries)
	engine := webhook.NewEngine(webhook.DefaultEngineConfig(), registry, deliveries, &stubTransport{status: 200}, nil)

	h := handlers.NewHandler(router, advisor, registry, engine)
	return NewRouter(h, jwtSecret)
}

func doJSON(t *testing.T, srv http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestHealthAndReadiness(t *testing.T) {
	srv := newTestServer(t, "")

	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var health handlers.HealthResponse
	decode(t, rec, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "dispatch", health.Service)

	rec = doJSON(t, srv, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEndpointLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, "")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/endpoints", map[string]interface{}{
		"name":        "soc-pager",
		"url":         "https://hooks.example.com/soc",
		"event_types": []string{"malware.detected"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.Endpoint
	decode(t, rec, &created)
	assert.NotEmpty(t, created.ID)
	assert.NotEmpty(t, created.Secret, "the secret is returned once, at registration")

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/endpoints", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Endpoints []*models.Endpoint `json:"endpoints"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Endpoints, 1)
	assert.Empty(t, list.Endpoints[0].Secret, "listings never echo the secret")

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/endpoints/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Endpoint
	decode(t, rec, &got)
	assert.Equal(t, "soc-pager", got.Name)
	assert.Empty(t, got.Secret)

	rec = doJSON(t, srv, http.MethodPut, "/api/v1/endpoints/"+created.ID, map[string]interface{}{
		"name": "soc-pager-v2",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &got)
	assert.Equal(t, "soc-pager-v2", got.Name)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/endpoints/"+created.ID+"/test", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result webhook.TestResult
	decode(t, rec, &result)
	assert.True(t, result.Success)

	rec = doJSON(t, srv, http.MethodDelete, "/api/v1/endpoints/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/endpoints/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEndpointValidationAndMethodErrors(t *testing.T) {
	srv := newTestServer(t, "")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/endpoints", map[string]interface{}{
		"url": "https://hooks.example.com/soc",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPatch, "/api/v1/endpoints", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/endpoints/nope/test", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv, http.MethodPut, "/api/v1/endpoints/nope", map[string]interface{}{
		"name": "renamed",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code, "updating an unknown endpoint is not a bad request")
}

func TestChannelLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t, "")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/channels", map[string]interface{}{
		"consumer_id": "soc-dashboard",
		"type":        "malware.detected",
		"priority":    "high",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var channel models.Channel
	decode(t, rec, &channel)
	require.NotEmpty(t, channel.ID)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/channels", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Channels []*models.Channel `json:"channels"`
	}
	decode(t, rec, &list)
	assert.Len(t, list.Channels, 1)

	rec = doJSON(t, srv, http.MethodPut, "/api/v1/channels/"+channel.ID+"/filters", map[string]interface{}{
		"filters": []map[string]interface{}{
			{"field": "severity", "operator": "equals", "value": "critical"},
		},
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPut, "/api/v1/channels/"+channel.ID+"/filters", map[string]interface{}{
		"filters": []map[string]interface{}{
			{"field": "severity", "operator": "resembles", "value": "critical"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown operators are rejected")

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/channels/"+channel.ID+"/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/consumers/soc-dashboard/throttle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rate models.ThrottleRecommendation
	decode(t, rec, &rate)
	assert.Equal(t, "soc-dashboard", rate.ConsumerID)

	rec = doJSON(t, srv, http.MethodDelete, "/api/v1/consumers/soc-dashboard/channels", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var closed map[string]int
	decode(t, rec, &closed)
	assert.Equal(t, 1, closed["closed"])

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/channels/"+channel.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventIntakeOverHTTP(t *testing.T) {
	srv := newTestServer(t, "")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/events", map[string]interface{}{
		"type": "malware.detected",
		"data": map[string]interface{}{"hash": "deadbeef"},
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var ack map[string]string
	decode(t, rec, &ack)
	assert.NotEmpty(t, ack["event_id"])

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/events", map[string]interface{}{
		"data": map[string]interface{}{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/events/process", map[string]interface{}{
		"id":       "evt-1",
		"type":     "malware.detected",
		"severity": "high",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats models.WebhookStats
	decode(t, rec, &stats)
	assert.Equal(t, 0, stats.TotalDeliveries)
}

func TestBearerAuthGuardsAPIRoutes(t *testing.T) {
	const secret = "router-test-secret"
	srv := newTestServer(t, secret)

	// Health and metrics stay open.
	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/endpoints", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		UserID: "op-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/endpoints", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	authed := httptest.NewRecorder()
	srv.ServeHTTP(authed, req)
	assert.Equal(t, http.StatusOK, authed.Code)
}
