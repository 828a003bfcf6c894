package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/telhawk-dispatch/internal/models"
	"github.com/telhawk-systems/telhawk-dispatch/internal/webhook/repository"
	"github.com/telhawk-systems/telhawk-dispatch/internal/webhook/store"
)

// Registry owns the endpoint collection. Deleting an endpoint cascades to
// its delivery records.
//
// Endpoint mutations are read-modify-write pairs against the repository;
// mu serializes them so concurrent delivery outcomes cannot lose counter
// increments or clobber an operator update.
type Registry struct {
	repo       repository.Repository
	deliveries store.Store

	mu sync.Mutex
}

// NewRegistry creates a registry over the given persistence backends.
func NewRegistry(repo repository.Repository, deliveries store.Store) *Registry {
	return &Registry{repo: repo, deliveries: deliveries}
}

// RegisterEndpointRequest carries a new delivery target's parameters.
// RetryPolicy is optional; omitted fields take the defaults.
type RegisterEndpointRequest struct {
	Name        string              `json:"name"`
	URL         string              `json:"url"`
	EventTypes  []string            `json:"event_types"`
	RetryPolicy *models.RetryPolicy `json:"retry_policy,omitempty"`
}

// UpdateEndpointRequest is a partial merge; nil fields are left unchanged.
type UpdateEndpointRequest struct {
	Name        *string                `json:"name,omitempty"`
	URL         *string                `json:"url,omitempty"`
	EventTypes  []string               `json:"event_types,omitempty"`
	Status      *models.EndpointStatus `json:"status,omitempty"`
	RetryPolicy *models.RetryPolicy    `json:"retry_policy,omitempty"`
}

// RegisterEndpoint validates the request, generates the endpoint's signing
// secret, and persists the registration with zeroed counters.
func (r *Registry) RegisterEndpoint(ctx context.Context, req RegisterEndpointRequest) (*models.Endpoint, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("name is required")
	}
	if err := validateURL(req.URL); err != nil {
		return nil, err
	}
	if len(req.EventTypes) == 0 {
		return nil, fmt.Errorf("at least one event type is required")
	}

	policy := models.DefaultRetryPolicy()
	if req.RetryPolicy != nil {
		policy = normalizePolicy(*req.RetryPolicy)
	}

	secret, err := newSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate endpoint id: %w", err)
	}

	now := time.Now()
	ep := &models.Endpoint{
		ID:          id.String(),
		Name:        req.Name,
		URL:         req.URL,
		Secret:      secret,
		EventTypes:  req.EventTypes,
		Status:      models.EndpointActive,
		RetryPolicy: policy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := r.repo.CreateEndpoint(ctx, ep); err != nil {
		return nil, err
	}
	return ep, nil
}

// UpdateEndpoint merges the non-nil request fields into the endpoint.
// Returns repository.ErrEndpointNotFound for an unknown id.
func (r *Registry) UpdateEndpoint(ctx context.Context, id string, req UpdateEndpointRequest) (*models.Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ep, err := r.repo.GetEndpoint(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		if *req.Name == "" {
			return nil, fmt.Errorf("name must not be empty")
		}
		ep.Name = *req.Name
	}
	if req.URL != nil {
		if err := validateURL(*req.URL); err != nil {
			return nil, err
		}
		ep.URL = *req.URL
	}
	if req.EventTypes != nil {
		if len(req.EventTypes) == 0 {
			return nil, fmt.Errorf("at least one event type is required")
		}
		ep.EventTypes = req.EventTypes
	}
	if req.Status != nil {
		switch *req.Status {
		case models.EndpointActive, models.EndpointDisabled, models.EndpointFailed:
			ep.Status = *req.Status
		default:
			return nil, fmt.Errorf("invalid status: %s", *req.Status)
		}
	}
	if req.RetryPolicy != nil {
		ep.RetryPolicy = normalizePolicy(*req.RetryPolicy)
	}
	ep.UpdatedAt = time.Now()

	if err := r.repo.UpdateEndpoint(ctx, ep); err != nil {
		return nil, err
	}
	return ep, nil
}

// DeleteEndpoint removes the endpoint and purges every delivery record that
// references it. Returns false for an unknown id.
func (r *Registry) DeleteEndpoint(ctx context.Context, id string) (bool, error) {
	if err := r.repo.DeleteEndpoint(ctx, id); err != nil {
		if errors.Is(err, repository.ErrEndpointNotFound) {
			return false, nil
		}
		return false, err
	}

	if _, err := r.deliveries.PurgeEndpoint(ctx, id); err != nil {
		return true, fmt.Errorf("purge deliveries: %w", err)
	}
	return true, nil
}

// GetEndpoint returns the endpoint with the given id, or nil if unknown.
func (r *Registry) GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error) {
	ep, err := r.repo.GetEndpoint(ctx, id)
	if errors.Is(err, repository.ErrEndpointNotFound) {
		return nil, nil
	}
	return ep, err
}

// ListEndpoints returns all registered endpoints.
func (r *Registry) ListEndpoints(ctx context.Context) ([]*models.Endpoint, error) {
	return r.repo.ListEndpoints(ctx)
}

// activeFor returns the active endpoints subscribed to the event type.
func (r *Registry) activeFor(ctx context.Context, eventType string) ([]*models.Endpoint, error) {
	endpoints, err := r.repo.ListEndpoints(ctx)
	if err != nil {
		return nil, err
	}

	var out []*models.Endpoint
	for _, ep := range endpoints {
		if ep.Status == models.EndpointActive && ep.SubscribedTo(eventType) {
			out = append(out, ep)
		}
	}
	return out, nil
}

// recordSuccess applies a delivered attempt's side effects to the endpoint.
// A success also clears a previous failed status.
func (r *Registry) recordSuccess(ctx context.Context, endpointID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ep, err := r.repo.GetEndpoint(ctx, endpointID)
	if err != nil {
		return
	}
	now := time.Now()
	ep.SuccessCount++
	ep.LastDelivery = &now
	if ep.Status == models.EndpointFailed {
		ep.Status = models.EndpointActive
	}
	ep.UpdatedAt = now
	_ = r.repo.UpdateEndpoint(ctx, ep)
}

// recordFailure increments the failure counter; exhausted marks the
// endpoint failed once its delivery ran out of retries.
func (r *Registry) recordFailure(ctx context.Context, endpointID string, exhausted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ep, err := r.repo.GetEndpoint(ctx, endpointID)
	if err != nil {
		return
	}
	ep.FailureCount++
	if exhausted && ep.Status == models.EndpointActive {
		ep.Status = models.EndpointFailed
	}
	ep.UpdatedAt = time.Now()
	_ = r.repo.UpdateEndpoint(ctx, ep)
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid url: %s", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported url scheme: %s", u.Scheme)
	}
	return nil
}

func normalizePolicy(p models.RetryPolicy) models.RetryPolicy {
	defaults := models.DefaultRetryPolicy()
	if p.MaxRetries <= 0 {
		p.MaxRetries = defaults.MaxRetries
	}
	if p.RetryDelayMs <= 0 {
		p.RetryDelayMs = defaults.RetryDelayMs
	}
	if p.BackoffMultiplier <= 0 {
		p.BackoffMultiplier = defaults.BackoffMultiplier
	}
	return p
}
