// Package store persists webhook delivery records. Records are short-lived
// audit state, not event history: both backends expire terminal records
// after a TTL.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/telhawk-systems/telhawk-dispatch/internal/models"
)

var ErrDeliveryNotFound = errors.New("delivery not found")

// Store is the delivery record table. One component (the delivery engine)
// owns all mutations; other callers read through its methods.
type Store interface {
	Create(ctx context.Context, d *models.Delivery) error
	Update(ctx context.Context, d *models.Delivery) error
	Get(ctx context.Context, id string) (*models.Delivery, error)

	// List returns deliveries newest-first, optionally scoped to an
	// endpoint. limit <= 0 applies the default of 100.
	List(ctx context.Context, endpointID string, limit int) ([]*models.Delivery, error)

	// DueRetries returns deliveries in the retrying state whose scheduled
	// wake time has elapsed.
	DueRetries(ctx context.Context, now time.Time) ([]*models.Delivery, error)

	// Failed returns terminally failed deliveries, optionally scoped to an
	// endpoint.
	Failed(ctx context.Context, endpointID string) ([]*models.Delivery, error)

	// PurgeEndpoint removes every delivery referencing the endpoint and
	// returns the count removed.
	PurgeEndpoint(ctx context.Context, endpointID string) (int, error)

	All(ctx context.Context) ([]*models.Delivery, error)

	Close() error
}

// MemoryStore keeps delivery records in process memory. Terminal records
// older than the TTL are pruned lazily on writes.
type MemoryStore struct {
	mu         sync.RWMutex
	deliveries map[string]*models.Delivery
	ttl        time.Duration
}

// NewMemoryStore creates an in-memory store. ttl <= 0 disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		deliveries: make(map[string]*models.Delivery),
		ttl:        ttl,
	}
}

func (s *MemoryStore) Create(ctx context.Context, d *models.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prune()
	s.deliveries[d.ID] = copyDelivery(d)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, d *models.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deliveries[d.ID]; !ok {
		return ErrDeliveryNotFound
	}
	s.deliveries[d.ID] = copyDelivery(d)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deliveries[id]
	if !ok {
		return nil, ErrDeliveryNotFound
	}
	return copyDelivery(d), nil
}

func (s *MemoryStore) List(ctx context.Context, endpointID string, limit int) ([]*models.Delivery, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	var out []*models.Delivery
	for _, d := range s.deliveries {
		if endpointID != "" && d.EndpointID != endpointID {
			continue
		}
		out = append(out, copyDelivery(d))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) DueRetries(ctx context.Context, now time.Time) ([]*models.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Delivery
	for _, d := range s.deliveries {
		if d.Status == models.DeliveryRetrying && d.NextRetryAt != nil && !d.NextRetryAt.After(now) {
			out = append(out, copyDelivery(d))
		}
	}
	return out, nil
}

func (s *MemoryStore) Failed(ctx context.Context, endpointID string) ([]*models.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Delivery
	for _, d := range s.deliveries {
		if d.Status != models.DeliveryFailed {
			continue
		}
		if endpointID != "" && d.EndpointID != endpointID {
			continue
		}
		out = append(out, copyDelivery(d))
	}
	return out, nil
}

func (s *MemoryStore) PurgeEndpoint(ctx context.Context, endpointID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for id, d := range s.deliveries {
		if d.EndpointID == endpointID {
			delete(s.deliveries, id)
			purged++
		}
	}
	return purged, nil
}

func (s *MemoryStore) All(ctx context.Context) ([]*models.Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Delivery, 0, len(s.deliveries))
	for _, d := range s.deliveries {
		out = append(out, copyDelivery(d))
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// prune drops terminal records past the TTL. Caller holds s.mu.
func (s *MemoryStore) prune() {
	if s.ttl <= 0 {
		return
	}
	cutoff := time.Now().Add(-s.ttl)
	for id, d := range s.deliveries {
		if d.Status.Terminal() && d.CompletedAt != nil && d.CompletedAt.Before(cutoff) {
			delete(s.deliveries, id)
		}
	}
}

// copyDelivery makes a defensive copy so callers cannot mutate stored state.
func copyDelivery(d *models.Delivery) *models.Delivery {
	cp := *d
	cp.Attempts = append([]models.Attempt(nil), d.Attempts...)
	if d.NextRetryAt != nil {
		t := *d.NextRetryAt
		cp.NextRetryAt = &t
	}
	if d.CompletedAt != nil {
		t := *d.CompletedAt
		cp.CompletedAt = &t
	}
	if d.Event != nil {
		ev := *d.Event
		cp.Event = &ev
	}
	return &cp
}
