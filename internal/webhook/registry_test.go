package webhook

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/telhawk-dispatch/internal/models"
	"github.com/telhawk-systems/telhawk-dispatch/internal/webhook/repository"
	"github.com/telhawk-systems/telhawk-dispatch/internal/webhook/store"
)

func newTestRegistry(t *testing.T) (*Registry, store.Store) {
	t.Helper()
	st := store.NewMemoryStore(0)
	return NewRegistry(repository.NewMemoryRepository(), st), st
}

func validRegistration() RegisterEndpointRequest {
	return RegisterEndpointRequest{
		Name:       "soc-pager",
		URL:        "https://hooks.example.com/soc",
		EventTypes: []string{"malware.detected", "auth.login.failed"},
	}
}

func TestRegisterEndpoint(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	ep, err := registry.RegisterEndpoint(ctx, validRegistration())
	require.NoError(t, err)

	assert.NotEmpty(t, ep.ID)
	assert.Len(t, ep.Secret, 64)
	assert.Equal(t, models.EndpointActive, ep.Status)
	assert.Equal(t, models.DefaultRetryPolicy(), ep.RetryPolicy)
	assert.False(t, ep.CreatedAt.IsZero())
	assert.Zero(t, ep.SuccessCount)
	assert.Zero(t, ep.FailureCount)

	other, err := registry.RegisterEndpoint(ctx, validRegistration())
	require.NoError(t, err)
	assert.NotEqual(t, ep.Secret, other.Secret, "each endpoint gets its own secret")
}

func TestRegisterEndpointValidation(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  RegisterEndpointRequest
	}{
		{"missing name", RegisterEndpointRequest{URL: "https://x.example.com", EventTypes: []string{"a"}}},
		{"missing url", RegisterEndpointRequest{Name: "x", EventTypes: []string{"a"}}},
		{"bad scheme", RegisterEndpointRequest{Name: "x", URL: "ftp://x.example.com", EventTypes: []string{"a"}}},
		{"no event types", RegisterEndpointRequest{Name: "x", URL: "https://x.example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := registry.RegisterEndpoint(ctx, tt.req)
			assert.Error(t, err)
		})
	}
}

func TestRegisterEndpointNormalizesPolicy(t *testing.T) {
	registry, _ := newTestRegistry(t)

	req := validRegistration()
	req.RetryPolicy = &models.RetryPolicy{MaxRetries: 5}

	ep, err := registry.RegisterEndpoint(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 5, ep.RetryPolicy.MaxRetries)
	assert.Equal(t, int64(1000), ep.RetryPolicy.RetryDelayMs)
	assert.Equal(t, 2.0, ep.RetryPolicy.BackoffMultiplier)
}

func TestUpdateEndpointPartialMerge(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	ep, err := registry.RegisterEndpoint(ctx, validRegistration())
	require.NoError(t, err)

	name := "soc-pager-v2"
	disabled := models.EndpointDisabled
	updated, err := registry.UpdateEndpoint(ctx, ep.ID, UpdateEndpointRequest{
		Name:   &name,
		Status: &disabled,
	})
	require.NoError(t, err)

	assert.Equal(t, "soc-pager-v2", updated.Name)
	assert.Equal(t, models.EndpointDisabled, updated.Status)
	assert.Equal(t, ep.URL, updated.URL, "unset fields keep their values")
	assert.Equal(t, ep.EventTypes, updated.EventTypes)
	assert.True(t, updated.UpdatedAt.After(ep.UpdatedAt) || updated.UpdatedAt.Equal(ep.UpdatedAt))
}

func TestUpdateEndpointRejectsInvalid(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	ep, err := registry.RegisterEndpoint(ctx, validRegistration())
	require.NoError(t, err)

	empty := ""
	_, err = registry.UpdateEndpoint(ctx, ep.ID, UpdateEndpointRequest{Name: &empty})
	assert.Error(t, err)

	badStatus := models.EndpointStatus("paused")
	_, err = registry.UpdateEndpoint(ctx, ep.ID, UpdateEndpointRequest{Status: &badStatus})
	assert.Error(t, err)

	_, err = registry.UpdateEndpoint(ctx, "nope", UpdateEndpointRequest{})
	assert.Error(t, err)
}

func TestDeleteEndpointCascades(t *testing.T) {
	registry, st := newTestRegistry(t)
	ctx := context.Background()

	ep, err := registry.RegisterEndpoint(ctx, validRegistration())
	require.NoError(t, err)

	// Seed delivery records referencing the endpoint.
	for i := 0; i < 3; i++ {
		require.NoError(t, st.Create(ctx, &models.Delivery{
			ID:         string(rune('a' + i)),
			EndpointID: ep.ID,
			Status:     models.DeliveryDelivered,
			CreatedAt:  time.Now(),
		}))
	}

	deleted, err := registry.DeleteEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err := registry.GetEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	remaining, err := st.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, remaining, "delivery history goes with the endpoint")

	deleted, err = registry.DeleteEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	assert.False(t, deleted, "second delete reports false")
}

func TestActiveFor(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	subscribed, err := registry.RegisterEndpoint(ctx, validRegistration())
	require.NoError(t, err)

	other := validRegistration()
	other.EventTypes = []string{"network.anomaly"}
	_, err = registry.RegisterEndpoint(ctx, other)
	require.NoError(t, err)

	off := validRegistration()
	offEp, err := registry.RegisterEndpoint(ctx, off)
	require.NoError(t, err)
	disabled := models.EndpointDisabled
	_, err = registry.UpdateEndpoint(ctx, offEp.ID, UpdateEndpointRequest{Status: &disabled})
	require.NoError(t, err)

	active, err := registry.activeFor(ctx, "malware.detected")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, subscribed.ID, active[0].ID)
}

func TestRecordSuccessClearsFailedStatus(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	ep, err := registry.RegisterEndpoint(ctx, validRegistration())
	require.NoError(t, err)

	registry.recordFailure(ctx, ep.ID, true)
	got, err := registry.GetEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EndpointFailed, got.Status)
	assert.Equal(t, int64(1), got.FailureCount)

	registry.recordSuccess(ctx, ep.ID)
	got, err = registry.GetEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EndpointActive, got.Status)
	assert.Equal(t, int64(1), got.SuccessCount)
	assert.NotNil(t, got.LastDelivery)
}

func TestConcurrentOutcomeRecordingKeepsExactCounts(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	ep, err := registry.RegisterEndpoint(ctx, validRegistration())
	require.NoError(t, err)

	const perKind = 50
	var wg sync.WaitGroup
	for i := 0; i < perKind; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			registry.recordSuccess(ctx, ep.ID)
		}()
		go func() {
			defer wg.Done()
			registry.recordFailure(ctx, ep.ID, false)
		}()
	}
	wg.Wait()

	got, err := registry.GetEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(perKind), got.SuccessCount)
	assert.Equal(t, int64(perKind), got.FailureCount)
}

func TestOutcomeRecordingDoesNotRevertConcurrentUpdates(t *testing.T) {
	registry, _ := newTestRegistry(t)
	ctx := context.Background()

	ep, err := registry.RegisterEndpoint(ctx, validRegistration())
	require.NoError(t, err)

	name := "renamed-under-load"
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			registry.recordSuccess(ctx, ep.ID)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := registry.UpdateEndpoint(ctx, ep.ID, UpdateEndpointRequest{Name: &name})
		assert.NoError(t, err)
	}()
	wg.Wait()

	got, err := registry.GetEndpoint(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, name, got.Name, "the operator update survives concurrent deliveries")
	assert.Equal(t, int64(20), got.SuccessCount)
}
