package models

import "time"

// ChannelPriority orders channels during routing and selects the relevance
// threshold a matched event must clear.
type ChannelPriority string

const (
	PriorityLow      ChannelPriority = "low"
	PriorityNormal   ChannelPriority = "normal"
	PriorityHigh     ChannelPriority = "high"
	PriorityCritical ChannelPriority = "critical"
)

// Rank returns the routing order of a priority; higher ranks are visited
// first. Unknown priorities sort last.
func (p ChannelPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 0
	default:
		return -1
	}
}

// Valid reports whether p is one of the known priorities.
func (p ChannelPriority) Valid() bool {
	return p.Rank() >= 0
}

// FilterOperator names the comparison applied by a filter condition.
type FilterOperator string

const (
	OpEquals      FilterOperator = "equals"
	OpContains    FilterOperator = "contains"
	OpGreaterThan FilterOperator = "greater_than"
	OpLessThan    FilterOperator = "less_than"
	OpIn          FilterOperator = "in"
	OpRegex       FilterOperator = "regex"
	OpRelevance   FilterOperator = "relevance"
)

// Filter is one declarative condition against an event record. A channel's
// filters combine with AND semantics.
type Filter struct {
	Field    string         `json:"field"`
	Operator FilterOperator `json:"operator"`
	Value    interface{}    `json:"value"`
	Weight   float64        `json:"weight,omitempty"`
}

// ChannelTypeCustom matches every event type regardless of the event's own
// type field.
const ChannelTypeCustom = "custom"

// Channel is one consumer subscription: a set of filters, a priority, and an
// optional aggregation window. A zero window means immediate delivery.
type Channel struct {
	ID                  string          `json:"id"`
	ConsumerID          string          `json:"consumer_id"`
	Type                string          `json:"type"`
	Filters             []Filter        `json:"filters"`
	Priority            ChannelPriority `json:"priority"`
	AggregationWindowMs int64           `json:"aggregation_window_ms,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	LastActivity        time.Time       `json:"last_activity"`
	EventCount          int64           `json:"event_count"`
}

// AggregationWindow returns the window as a duration; zero means unbuffered.
func (c *Channel) AggregationWindow() time.Duration {
	return time.Duration(c.AggregationWindowMs) * time.Millisecond
}

// ChannelMetrics tracks per-channel routing counters. Lifecycle is tied 1:1
// to the owning channel and all updates go through the router.
type ChannelMetrics struct {
	ChannelID           string  `json:"channel_id"`
	EventsProcessed     int64   `json:"events_processed"`
	EventsFiltered      int64   `json:"events_filtered"`
	EventsAggregated    int64   `json:"events_aggregated"`
	AverageLatency      float64 `json:"average_latency_ms"`
	ThroughputPerSecond float64 `json:"throughput_per_second"`
	FilterEfficiency    float64 `json:"filter_efficiency"`
}

// ThrottleLevel grades how aggressively a consumer should be rate-shaped.
type ThrottleLevel string

const (
	ThrottleNone     ThrottleLevel = "none"
	ThrottleLight    ThrottleLevel = "light"
	ThrottleModerate ThrottleLevel = "moderate"
	ThrottleHeavy    ThrottleLevel = "heavy"
)

// ThrottleRecommendation is the advisory output of the throttle advisor.
// The transport layer, not the router, is responsible for enforcing it.
type ThrottleRecommendation struct {
	ConsumerID      string        `json:"consumer_id"`
	RecommendedRate float64       `json:"recommended_rate"`
	ThrottleLevel   ThrottleLevel `json:"throttle_level"`
	Reason          string        `json:"reason"`
}
