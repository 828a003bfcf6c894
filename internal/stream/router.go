package stream

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/telhawk-dispatch/internal/logging"
	"github.com/telhawk-systems/telhawk-dispatch/internal/metrics"
	"github.com/telhawk-systems/telhawk-dispatch/internal/models"
)

var (
	ErrChannelNotFound = errors.New("channel not found")
)

// channelState pairs a channel with its metrics. Both are mutated only
// through router methods while holding the router lock.
type channelState struct {
	channel models.Channel
	metrics models.ChannelMetrics
}

// Router owns the channel registry. For each incoming event it finds the
// matching channels in descending priority order, scores relevance, and
// either returns the event for immediate delivery or buffers it for the
// channel's aggregation window.
type Router struct {
	mu         sync.RWMutex
	channels   map[string]*channelState
	scorer     *RelevanceScorer
	aggregator *Aggregator
	logger     *logging.Logger
}

// NewRouter creates a router. The aggregator may be nil when every channel
// is unbuffered (tests); windowed channel creation then fails.
func NewRouter(scorer *RelevanceScorer, aggregator *Aggregator, logger *logging.Logger) *Router {
	if logger == nil {
		logger = logging.Default()
	}
	return &Router{
		channels:   make(map[string]*channelState),
		scorer:     scorer,
		aggregator: aggregator,
		logger:     logger,
	}
}

// SetAggregator binds the aggregator after construction. The aggregator's
// flush hook points back at the router, so the two are wired in two steps.
func (r *Router) SetAggregator(a *Aggregator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aggregator = a
}

// CreateChannelRequest carries a consumer's subscription parameters.
type CreateChannelRequest struct {
	ConsumerID          string                 `json:"consumer_id"`
	Type                string                 `json:"type"`
	Priority            models.ChannelPriority `json:"priority"`
	Filters             []models.Filter        `json:"filters"`
	AggregationWindowMs int64                  `json:"aggregation_window_ms,omitempty"`
}

// CreateChannel registers a subscription. Validation errors are returned
// synchronously; a valid windowed channel gets exactly one live periodic
// timer bound to its id.
func (r *Router) CreateChannel(req CreateChannelRequest) (*models.Channel, error) {
	if req.ConsumerID == "" {
		return nil, fmt.Errorf("consumer_id is required")
	}
	if req.Type == "" {
		return nil, fmt.Errorf("type is required")
	}
	if req.Priority == "" {
		req.Priority = models.PriorityNormal
	}
	if !req.Priority.Valid() {
		return nil, fmt.Errorf("invalid priority: %s", req.Priority)
	}
	if err := ValidateFilters(req.Filters); err != nil {
		return nil, err
	}
	if req.AggregationWindowMs < 0 {
		return nil, fmt.Errorf("aggregation window must not be negative")
	}
	if req.AggregationWindowMs > 0 && r.aggregator == nil {
		return nil, fmt.Errorf("aggregation is not enabled")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate channel id: %w", err)
	}

	now := time.Now()
	ch := models.Channel{
		ID:                  id.String(),
		ConsumerID:          req.ConsumerID,
		Type:                req.Type,
		Filters:             req.Filters,
		Priority:            req.Priority,
		AggregationWindowMs: req.AggregationWindowMs,
		CreatedAt:           now,
		LastActivity:        now,
	}

	r.mu.Lock()
	r.channels[ch.ID] = &channelState{
		channel: ch,
		metrics: models.ChannelMetrics{ChannelID: ch.ID},
	}
	r.mu.Unlock()

	if ch.AggregationWindowMs > 0 {
		r.aggregator.Start(ch.ID, ch.AggregationWindow())
	}

	metrics.ChannelsActive.Inc()
	r.logger.With("channel_id", ch.ID, "consumer_id", ch.ConsumerID,
		"priority", string(ch.Priority)).Info("channel created")

	return &ch, nil
}

// UpdateFilters replaces a channel's filter set. Returns false for an
// unknown channel id.
func (r *Router) UpdateFilters(channelID string, filters []models.Filter) bool {
	if err := ValidateFilters(filters); err != nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.channels[channelID]
	if !ok {
		return false
	}
	st.channel.Filters = filters
	return true
}

// CloseChannel destroys a subscription and cancels its aggregation timer.
// Returns false for an unknown channel id.
func (r *Router) CloseChannel(channelID string) bool {
	r.mu.Lock()
	st, ok := r.channels[channelID]
	if ok {
		delete(r.channels, channelID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	if st.channel.AggregationWindowMs > 0 && r.aggregator != nil {
		r.aggregator.Stop(channelID)
	}
	metrics.ChannelsActive.Dec()
	r.logger.With("channel_id", channelID).Info("channel closed")
	return true
}

// CloseAllForConsumer closes every channel owned by the consumer and
// returns the count closed.
func (r *Router) CloseAllForConsumer(consumerID string) int {
	r.mu.RLock()
	var ids []string
	for id, st := range r.channels {
		if st.channel.ConsumerID == consumerID {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	closed := 0
	for _, id := range ids {
		if r.CloseChannel(id) {
			closed++
		}
	}
	return closed
}

// Channel returns a copy of the channel with the given id.
func (r *Router) Channel(channelID string) (*models.Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.channels[channelID]
	if !ok {
		return nil, false
	}
	ch := st.channel
	return &ch, true
}

// Channels returns copies of all registered channels.
func (r *Router) Channels() []*models.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Channel, 0, len(r.channels))
	for _, st := range r.channels {
		ch := st.channel
		out = append(out, &ch)
	}
	return out
}

// Metrics returns a copy of the channel's metrics.
func (r *Router) Metrics(channelID string) (*models.ChannelMetrics, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.channels[channelID]
	if !ok {
		return nil, false
	}
	m := st.metrics
	return &m, true
}

// ConsumerMetrics returns metrics for every channel owned by the consumer.
func (r *Router) ConsumerMetrics(consumerID string) []models.ChannelMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.ChannelMetrics
	for _, st := range r.channels {
		if st.channel.ConsumerID == consumerID {
			out = append(out, st.metrics)
		}
	}
	return out
}

// ProcessEvent routes one event and returns the per-channel events ready
// for immediate delivery. Channels are visited critical-to-low so that the
// most urgent channel's side effects are applied first; this ordering is a
// documented tie-break, not an optimization. Buffered (windowed) channels
// consume matching events without returning them here.
func (r *Router) ProcessEvent(ctx context.Context, event *models.EventRecord) map[string]*models.RoutedEvent {
	start := time.Now()
	out := make(map[string]*models.RoutedEvent)
	var buffered []models.RoutedEvent

	r.mu.Lock()
	states := make([]*channelState, 0, len(r.channels))
	for _, st := range r.channels {
		states = append(states, st)
	}
	// Descending priority; channel id breaks ties deterministically.
	sort.Slice(states, func(i, j int) bool {
		pi, pj := states[i].channel.Priority.Rank(), states[j].channel.Priority.Rank()
		if pi != pj {
			return pi > pj
		}
		return states[i].channel.ID < states[j].channel.ID
	})

	for _, st := range states {
		ch := &st.channel

		if ch.Type != event.Type && ch.Type != models.ChannelTypeCustom {
			continue
		}
		if !ApplyFilters(event, ch.Filters) {
			continue
		}

		// The channel matched: activity is recorded whether or not the
		// relevance gate passes.
		ch.LastActivity = time.Now()
		ch.EventCount++

		score := r.scorer.Score(event, ch)
		if score < r.scorer.Threshold(ch.Priority) {
			st.metrics.EventsFiltered++
			r.updateDerivedMetrics(st, start)
			metrics.EventsFiltered.Inc()
			continue
		}

		routed := models.RoutedEvent{
			EventRecord:    *event,
			RelevanceScore: score,
			ChannelID:      ch.ID,
			Priority:       ch.Priority,
			ProcessedAt:    time.Now(),
		}

		st.metrics.EventsProcessed++
		r.updateDerivedMetrics(st, start)
		metrics.EventsRouted.WithLabelValues(string(ch.Priority)).Inc()

		if ch.AggregationWindowMs > 0 {
			buffered = append(buffered, routed)
			continue
		}

		out[ch.ID] = &routed
	}
	r.mu.Unlock()

	// Appended outside the router lock; the aggregator's flush timer swaps
	// the buffer under its own lock, so nothing is double-counted.
	for _, ev := range buffered {
		r.aggregator.Append(ctx, ev.ChannelID, ev)
	}

	return out
}

// RecordAggregated folds a flushed window back into the channel's metrics.
// Wired as the aggregator's onFlush hook.
func (r *Router) RecordAggregated(channelID string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.channels[channelID]; ok {
		st.metrics.EventsAggregated += int64(n)
	}
	metrics.AggregationsFlushed.Inc()
}

// updateDerivedMetrics refreshes the running latency mean, throughput, and
// filter efficiency after a routing decision. Caller holds r.mu.
func (r *Router) updateDerivedMetrics(st *channelState, start time.Time) {
	m := &st.metrics

	latency := float64(time.Since(start).Microseconds()) / 1000.0
	decisions := m.EventsProcessed + m.EventsFiltered
	if decisions > 0 {
		m.AverageLatency += (latency - m.AverageLatency) / float64(decisions)
		m.FilterEfficiency = float64(m.EventsProcessed) / float64(decisions)
	}

	elapsed := time.Since(st.channel.CreatedAt).Seconds()
	if elapsed > 0 {
		m.ThroughputPerSecond = float64(m.EventsProcessed) / elapsed
	}
}
