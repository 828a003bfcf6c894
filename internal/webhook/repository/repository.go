// Package repository persists webhook endpoint registrations.
package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/telhawk-systems/telhawk-dispatch/internal/models"
)

var ErrEndpointNotFound = errors.New("endpoint not found")

// Repository defines the interface for endpoint persistence.
type Repository interface {
	CreateEndpoint(ctx context.Context, ep *models.Endpoint) error
	GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error)
	ListEndpoints(ctx context.Context) ([]*models.Endpoint, error)
	UpdateEndpoint(ctx context.Context, ep *models.Endpoint) error
	DeleteEndpoint(ctx context.Context, id string) error

	Close() error
}

// MemoryRepository keeps endpoints in process memory. Used for tests and
// standalone deployments without Postgres.
type MemoryRepository struct {
	mu        sync.RWMutex
	endpoints map[string]*models.Endpoint
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{endpoints: make(map[string]*models.Endpoint)}
}

func (r *MemoryRepository) CreateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := copyEndpoint(ep)
	r.endpoints[ep.ID] = cp
	return nil
}

func (r *MemoryRepository) GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ep, ok := r.endpoints[id]
	if !ok {
		return nil, ErrEndpointNotFound
	}
	return copyEndpoint(ep), nil
}

func (r *MemoryRepository) ListEndpoints(ctx context.Context) ([]*models.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		out = append(out, copyEndpoint(ep))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepository) UpdateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.endpoints[ep.ID]; !ok {
		return ErrEndpointNotFound
	}
	r.endpoints[ep.ID] = copyEndpoint(ep)
	return nil
}

func (r *MemoryRepository) DeleteEndpoint(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.endpoints[id]; !ok {
		return ErrEndpointNotFound
	}
	delete(r.endpoints, id)
	return nil
}

func (r *MemoryRepository) Close() error {
	return nil
}

func copyEndpoint(ep *models.Endpoint) *models.Endpoint {
	cp := *ep
	cp.EventTypes = append([]string(nil), ep.EventTypes...)
	if ep.LastDelivery != nil {
		t := *ep.LastDelivery
		cp.LastDelivery = &t
	}
	return &cp
}
