package natsio

import (
	"context"
	"fmt"

	"github.com/telhawk-systems/telhawk-dispatch/internal/models"
)

// Publisher pushes routed output onto per-channel subjects. It satisfies
// the stream sink interface, so both immediate events and flushed window
// aggregations travel the same way.
type Publisher struct {
	client *Client
}

// NewPublisher creates a Publisher over an established client.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

// DeliverEvent publishes an immediate routed event to the channel subject.
func (p *Publisher) DeliverEvent(ctx context.Context, channelID string, ev *models.RoutedEvent) error {
	if err := p.client.PublishJSON(ctx, ChannelSubject(channelID), ev); err != nil {
		return fmt.Errorf("publish routed event: %w", err)
	}
	return nil
}

// DeliverAggregation publishes a flushed window to the channel's
// aggregation subject.
func (p *Publisher) DeliverAggregation(ctx context.Context, channelID string, agg *models.EventAggregation) error {
	if err := p.client.PublishJSON(ctx, AggregationSubject(channelID), agg); err != nil {
		return fmt.Errorf("publish aggregation: %w", err)
	}
	return nil
}
