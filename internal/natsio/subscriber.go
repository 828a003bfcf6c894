package natsio

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/telhawk-dispatch/internal/logging"
	"github.com/telhawk-systems/telhawk-dispatch/internal/models"
	"github.com/telhawk-systems/telhawk-dispatch/internal/stream"
	"github.com/telhawk-systems/telhawk-dispatch/internal/webhook"
)

// Subscriber consumes inbound events from NATS and feeds both distribution
// paths: the stream router for consumer channels and the webhook engine
// for registered endpoints.
type Subscriber struct {
	client    *Client
	router    *stream.Router
	publisher *Publisher
	engine    *webhook.Engine
	logger    *logging.Logger
}

// NewSubscriber creates a Subscriber. The engine may be nil when webhook
// fan-out is not wanted.
func NewSubscriber(client *Client, router *stream.Router, publisher *Publisher, engine *webhook.Engine, logger *logging.Logger) *Subscriber {
	if logger == nil {
		logger = logging.Default()
	}
	return &Subscriber{
		client:    client,
		router:    router,
		publisher: publisher,
		engine:    engine,
		logger:    logger,
	}
}

// Start opens the queue subscriptions. Detected security events drive the
// full pipeline; the webhook subject feeds the delivery queue directly.
func (s *Subscriber) Start() error {
	if err := s.client.QueueSubscribe(SubjectEventsDetected, QueueGroup, s.handleDetected); err != nil {
		return fmt.Errorf("subscribe %s: %w", SubjectEventsDetected, err)
	}
	if s.engine != nil {
		if err := s.client.QueueSubscribe(SubjectWebhookEvents, QueueGroup, s.handleWebhookEvent); err != nil {
			return fmt.Errorf("subscribe %s: %w", SubjectWebhookEvents, err)
		}
	}
	return nil
}

func (s *Subscriber) handleDetected(ctx context.Context, subject string, data []byte) error {
	var event models.EventRecord
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}
	if event.Type == "" {
		return fmt.Errorf("event missing type")
	}
	if event.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate event id: %w", err)
		}
		event.ID = id.String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	routed := s.router.ProcessEvent(ctx, &event)
	for channelID, ev := range routed {
		if err := s.publisher.DeliverEvent(ctx, channelID, ev); err != nil {
			s.logger.ErrorContext(ctx, "failed to deliver routed event",
				"channel_id", channelID, "event_id", event.ID, "error", err)
		}
	}

	if s.engine != nil {
		if _, err := s.engine.TriggerEvent(ctx, triggerRequest(&event)); err != nil {
			s.logger.ErrorContext(ctx, "failed to enqueue webhook event",
				"event_id", event.ID, "error", err)
		}
	}
	return nil
}

func (s *Subscriber) handleWebhookEvent(ctx context.Context, subject string, data []byte) error {
	var req webhook.TriggerEventRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("unmarshal webhook event: %w", err)
	}
	if _, err := s.engine.TriggerEvent(ctx, req); err != nil {
		return fmt.Errorf("enqueue webhook event: %w", err)
	}
	return nil
}

// triggerRequest maps a security event onto the webhook intake shape.
func triggerRequest(event *models.EventRecord) webhook.TriggerEventRequest {
	data := map[string]interface{}{
		"severity":    string(event.Severity),
		"source":      event.Source,
		"target":      event.Target,
		"description": event.Description,
	}
	return webhook.TriggerEventRequest{
		Type:     event.Type,
		Data:     data,
		Source:   event.Source,
		Metadata: event.Metadata,
	}
}
