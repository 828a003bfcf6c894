package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/telhawk-dispatch/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) CreateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	query := `
		INSERT INTO endpoints (
			id, name, url, secret, event_types, status,
			max_retries, retry_delay_ms, backoff_multiplier,
			created_at, updated_at, last_delivery, success_count, failure_count
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.pool.Exec(ctx, query,
		ep.ID, ep.Name, ep.URL, ep.Secret, ep.EventTypes, ep.Status,
		ep.RetryPolicy.MaxRetries, ep.RetryPolicy.RetryDelayMs, ep.RetryPolicy.BackoffMultiplier,
		ep.CreatedAt, ep.UpdatedAt, ep.LastDelivery, ep.SuccessCount, ep.FailureCount,
	)
	if err != nil {
		return fmt.Errorf("failed to create endpoint: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetEndpoint(ctx context.Context, id string) (*models.Endpoint, error) {
	query := `
		SELECT id, name, url, secret, event_types, status,
		       max_retries, retry_delay_ms, backoff_multiplier,
		       created_at, updated_at, last_delivery, success_count, failure_count
		FROM endpoints
		WHERE id = $1
	`

	ep, err := scanEndpoint(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEndpointNotFound
		}
		return nil, fmt.Errorf("failed to get endpoint: %w", err)
	}

	return ep, nil
}

func (r *PostgresRepository) ListEndpoints(ctx context.Context) ([]*models.Endpoint, error) {
	query := `
		SELECT id, name, url, secret, event_types, status,
		       max_retries, retry_delay_ms, backoff_multiplier,
		       created_at, updated_at, last_delivery, success_count, failure_count
		FROM endpoints
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []*models.Endpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan endpoint: %w", err)
		}
		endpoints = append(endpoints, ep)
	}

	return endpoints, rows.Err()
}

func (r *PostgresRepository) UpdateEndpoint(ctx context.Context, ep *models.Endpoint) error {
	query := `
		UPDATE endpoints
		SET name = $2, url = $3, event_types = $4, status = $5,
		    max_retries = $6, retry_delay_ms = $7, backoff_multiplier = $8,
		    updated_at = $9, last_delivery = $10, success_count = $11, failure_count = $12
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query,
		ep.ID, ep.Name, ep.URL, ep.EventTypes, ep.Status,
		ep.RetryPolicy.MaxRetries, ep.RetryPolicy.RetryDelayMs, ep.RetryPolicy.BackoffMultiplier,
		ep.UpdatedAt, ep.LastDelivery, ep.SuccessCount, ep.FailureCount,
	)
	if err != nil {
		return fmt.Errorf("failed to update endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEndpointNotFound
	}

	return nil
}

func (r *PostgresRepository) DeleteEndpoint(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM endpoints WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEndpointNotFound
	}

	return nil
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// scanEndpoint reads one endpoint row from either a Row or Rows.
func scanEndpoint(row pgx.Row) (*models.Endpoint, error) {
	ep := &models.Endpoint{}
	err := row.Scan(
		&ep.ID, &ep.Name, &ep.URL, &ep.Secret, &ep.EventTypes, &ep.Status,
		&ep.RetryPolicy.MaxRetries, &ep.RetryPolicy.RetryDelayMs, &ep.RetryPolicy.BackoffMultiplier,
		&ep.CreatedAt, &ep.UpdatedAt, &ep.LastDelivery, &ep.SuccessCount, &ep.FailureCount,
	)
	if err != nil {
		return nil, err
	}
	return ep, nil
}
