// Package models defines the shared data types for the dispatch service.
package models

import (
	"strings"
	"time"
)

// Severity classifies the impact of a security event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// EventRecord is the canonical representation of one security event.
// Records are immutable once created and flow by shared read-only
// reference through both the stream and webhook paths.
type EventRecord struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Timestamp   time.Time              `json:"timestamp"`
	Severity    Severity               `json:"severity,omitempty"`
	Source      string                 `json:"source"`
	Target      string                 `json:"target,omitempty"`
	Description string                 `json:"description,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Field resolves a dotted path into the event record. Top-level fields are
// addressed by name ("severity", "source"); everything under "metadata." is
// looked up in the metadata map, descending through nested maps.
func (e *EventRecord) Field(path string) (interface{}, bool) {
	parts := strings.Split(path, ".")

	switch parts[0] {
	case "id":
		return e.ID, true
	case "type":
		return e.Type, true
	case "timestamp":
		return e.Timestamp, true
	case "severity":
		if e.Severity == "" {
			return nil, false
		}
		return string(e.Severity), true
	case "source":
		return e.Source, true
	case "target":
		if e.Target == "" {
			return nil, false
		}
		return e.Target, true
	case "description":
		return e.Description, true
	case "metadata":
		return lookupMap(e.Metadata, parts[1:])
	default:
		return nil, false
	}
}

// lookupMap descends through nested maps following the remaining path parts.
func lookupMap(m map[string]interface{}, parts []string) (interface{}, bool) {
	if len(parts) == 0 || m == nil {
		return nil, false
	}

	v, ok := m[parts[0]]
	if !ok {
		return nil, false
	}
	if len(parts) == 1 {
		return v, true
	}

	nested, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}
	return lookupMap(nested, parts[1:])
}

// RoutedEvent is an event record enriched with routing context before it is
// delivered to (or buffered for) a channel.
type RoutedEvent struct {
	EventRecord
	RelevanceScore float64         `json:"relevance_score"`
	ChannelID      string          `json:"channel_id"`
	Priority       ChannelPriority `json:"priority"`
	ProcessedAt    time.Time       `json:"processed_at"`
}

// TimeRange bounds the events covered by an aggregation window.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// AggregationSummary condenses a flushed window's contents.
type AggregationSummary struct {
	SeverityCounts map[Severity]int `json:"severity_counts"`
	UniqueSources  []string         `json:"unique_sources"`
	TimeRange      TimeRange        `json:"time_range"`
}

// EventAggregation is the summarized batch produced when a channel's
// aggregation window fires with a non-empty buffer. Immutable once built.
type EventAggregation struct {
	WindowID     string             `json:"window_id"`
	ChannelID    string             `json:"channel_id"`
	Events       []RoutedEvent      `json:"events"`
	AggregatedAt time.Time          `json:"aggregated_at"`
	TotalEvents  int                `json:"total_events"`
	Summary      AggregationSummary `json:"summary"`
}
