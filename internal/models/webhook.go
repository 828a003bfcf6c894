package models

import "time"

// EndpointStatus is the operational state of a webhook endpoint.
type EndpointStatus string

const (
	EndpointActive   EndpointStatus = "active"
	EndpointDisabled EndpointStatus = "disabled"
	EndpointFailed   EndpointStatus = "failed"
)

// RetryPolicy controls delivery retries for one endpoint.
// nextRetryAt = now + retry_delay_ms * backoff_multiplier^(attempt-1).
type RetryPolicy struct {
	MaxRetries        int     `json:"max_retries"`
	RetryDelayMs      int64   `json:"retry_delay_ms"`
	BackoffMultiplier float64 `json:"backoff_multiplier"`
}

// DefaultRetryPolicy is applied when a registration omits a policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		RetryDelayMs:      1000,
		BackoffMultiplier: 2,
	}
}

// Delay returns the wait before the given attempt number (1-based) is retried.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := float64(p.RetryDelayMs)
	for i := 1; i < attempt; i++ {
		delay *= p.BackoffMultiplier
	}
	return time.Duration(delay) * time.Millisecond
}

// Endpoint is a registered external delivery target with its own signing
// secret and retry policy. Endpoints subscribe by event type only.
type Endpoint struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	URL          string         `json:"url"`
	Secret       string         `json:"secret,omitempty"`
	EventTypes   []string       `json:"event_types"`
	Status       EndpointStatus `json:"status"`
	RetryPolicy  RetryPolicy    `json:"retry_policy"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	LastDelivery *time.Time     `json:"last_delivery,omitempty"`
	SuccessCount int64          `json:"success_count"`
	FailureCount int64          `json:"failure_count"`
}

// SubscribedTo reports whether the endpoint wants events of the given type.
func (e *Endpoint) SubscribedTo(eventType string) bool {
	for _, t := range e.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

// QueuedEvent is an event awaiting webhook fan-out. It is consumed by the
// queue drain; after dispatch, retries reconstruct context from the Delivery.
type QueuedEvent struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Source    string                 `json:"source,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// DeliveryStatus is the state of one delivery's state machine.
// Terminal states are "delivered" and "failed"; "retrying" carries a
// scheduled wake time in NextRetryAt.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliveryRetrying  DeliveryStatus = "retrying"
)

// Terminal reports whether the status admits no further transitions.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryDelivered || s == DeliveryFailed
}

// Attempt is the immutable audit record of one delivery try.
type Attempt struct {
	AttemptNumber   int               `json:"attempt_number"`
	Timestamp       time.Time         `json:"timestamp"`
	HTTPStatus      int               `json:"http_status,omitempty"`
	ResponseTimeMs  int64             `json:"response_time_ms"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	RequestHeaders  map[string]string `json:"request_headers"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	RequestBody     string            `json:"request_body"`
	ResponseBody    string            `json:"response_body,omitempty"`
}

// Delivery tracks the attempt history and terminal outcome of sending one
// queued event to one endpoint. The originating event is carried along so
// retries do not depend on the queue.
type Delivery struct {
	ID          string         `json:"id"`
	EndpointID  string         `json:"endpoint_id"`
	EventID     string         `json:"event_id"`
	URL         string         `json:"url"`
	Method      string         `json:"method"`
	Status      DeliveryStatus `json:"status"`
	Attempts    []Attempt      `json:"attempts"`
	NextRetryAt *time.Time     `json:"next_retry_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Event       *QueuedEvent   `json:"event"`
}

// DeliveryRate buckets delivery counts by record age.
type DeliveryRate struct {
	Last24h   int `json:"last_24h"`
	LastWeek  int `json:"last_week"`
	LastMonth int `json:"last_month"`
}

// EventTypeStat summarizes delivery outcomes for one event type.
type EventTypeStat struct {
	EventType   string  `json:"event_type"`
	Count       int     `json:"count"`
	SuccessRate float64 `json:"success_rate"`
}

// WebhookStats is a read-only view derived from the endpoint and delivery
// collections.
type WebhookStats struct {
	TotalEndpoints       int             `json:"total_endpoints"`
	ActiveEndpoints      int             `json:"active_endpoints"`
	TotalDeliveries      int             `json:"total_deliveries"`
	SuccessfulDeliveries int             `json:"successful_deliveries"`
	FailedDeliveries     int             `json:"failed_deliveries"`
	AverageResponseTime  float64         `json:"average_response_time_ms"`
	DeliveryRate         DeliveryRate    `json:"delivery_rate"`
	TopEventTypes        []EventTypeStat `json:"top_event_types"`
}
