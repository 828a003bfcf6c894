package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/telhawk-dispatch/internal/models"
)

func makeEndpoint(id string, createdAt time.Time) *models.Endpoint {
	return &models.Endpoint{
		ID:          id,
		Name:        "endpoint-" + id,
		URL:         "https://hooks.example.com/" + id,
		Secret:      "secret-" + id,
		EventTypes:  []string{"malware.detected"},
		Status:      models.EndpointActive,
		RetryPolicy: models.DefaultRetryPolicy(),
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestMemoryRepositoryCRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.CreateEndpoint(ctx, makeEndpoint("ep1", created)))

	got, err := repo.GetEndpoint(ctx, "ep1")
	require.NoError(t, err)
	assert.Equal(t, "endpoint-ep1", got.Name)
	assert.Equal(t, models.EndpointActive, got.Status)

	got.Name = "renamed"
	got.Status = models.EndpointDisabled
	require.NoError(t, repo.UpdateEndpoint(ctx, got))

	again, err := repo.GetEndpoint(ctx, "ep1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", again.Name)
	assert.Equal(t, models.EndpointDisabled, again.Status)

	require.NoError(t, repo.DeleteEndpoint(ctx, "ep1"))
	_, err = repo.GetEndpoint(ctx, "ep1")
	assert.ErrorIs(t, err, ErrEndpointNotFound)
}

func TestMemoryRepositoryNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	_, err := repo.GetEndpoint(ctx, "nope")
	assert.ErrorIs(t, err, ErrEndpointNotFound)

	err = repo.UpdateEndpoint(ctx, makeEndpoint("nope", time.Now()))
	assert.ErrorIs(t, err, ErrEndpointNotFound)

	err = repo.DeleteEndpoint(ctx, "nope")
	assert.ErrorIs(t, err, ErrEndpointNotFound)
}

func TestMemoryRepositoryListOrdersByCreation(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.CreateEndpoint(ctx, makeEndpoint("c", base.Add(2*time.Minute))))
	require.NoError(t, repo.CreateEndpoint(ctx, makeEndpoint("a", base)))
	require.NoError(t, repo.CreateEndpoint(ctx, makeEndpoint("b", base.Add(time.Minute))))

	endpoints, err := repo.ListEndpoints(ctx)
	require.NoError(t, err)
	require.Len(t, endpoints, 3)
	assert.Equal(t, "a", endpoints[0].ID)
	assert.Equal(t, "b", endpoints[1].ID)
	assert.Equal(t, "c", endpoints[2].ID)
}

func TestMemoryRepositoryCopiesAreDefensive(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	ep := makeEndpoint("ep1", time.Now())
	require.NoError(t, repo.CreateEndpoint(ctx, ep))

	got, err := repo.GetEndpoint(ctx, "ep1")
	require.NoError(t, err)
	got.EventTypes[0] = "mutated"
	got.Name = "mutated"

	fresh, err := repo.GetEndpoint(ctx, "ep1")
	require.NoError(t, err)
	assert.Equal(t, "endpoint-ep1", fresh.Name)
	assert.Equal(t, []string{"malware.detected"}, fresh.EventTypes)
}
