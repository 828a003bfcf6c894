package stream

import (
	"github.com/telhawk-systems/telhawk-dispatch/internal/models"
)

// Scorer computes an additional 0..1 relevance signal for an event/channel
// pair. When present its output is averaged with the built-in score.
type Scorer interface {
	Score(event *models.EventRecord, ch *models.Channel) float64
}

// RelevanceConfig holds the scoring weights and per-priority thresholds.
// The values are tuned product defaults, not structural invariants, so they
// are configurable rather than hard-coded.
type RelevanceConfig struct {
	SeverityWeight    float64                            `mapstructure:"severity_weight"`
	TypeAffinityExact float64                            `mapstructure:"type_affinity_exact"`
	TypeAffinityOther float64                            `mapstructure:"type_affinity_other"`
	Baseline          float64                            `mapstructure:"baseline"`
	Thresholds        map[models.ChannelPriority]float64 `mapstructure:"thresholds"`
}

// DefaultRelevanceConfig returns the stock weights: 0.4 severity + 0.3 type
// affinity (0.1 on mismatch) + 0.3 baseline, with thresholds that make
// higher-priority channels pickier.
func DefaultRelevanceConfig() RelevanceConfig {
	return RelevanceConfig{
		SeverityWeight:    0.4,
		TypeAffinityExact: 0.3,
		TypeAffinityOther: 0.1,
		Baseline:          0.3,
		Thresholds: map[models.ChannelPriority]float64{
			models.PriorityCritical: 0.9,
			models.PriorityHigh:     0.7,
			models.PriorityNormal:   0.5,
			models.PriorityLow:      0.3,
		},
	}
}

// RelevanceScorer computes the 0..1 priority score used to decide whether a
// matched event is worth delivering to a channel.
type RelevanceScorer struct {
	cfg    RelevanceConfig
	custom Scorer
}

// NewRelevanceScorer builds a scorer with the given config and an optional
// pluggable scorer (nil disables the custom component).
func NewRelevanceScorer(cfg RelevanceConfig, custom Scorer) *RelevanceScorer {
	return &RelevanceScorer{cfg: cfg, custom: custom}
}

// Score combines severity, type affinity, and the baseline, averages in the
// custom scorer when present, and clamps to [0,1].
func (s *RelevanceScorer) Score(event *models.EventRecord, ch *models.Channel) float64 {
	affinity := s.cfg.TypeAffinityOther
	if ch.Type == event.Type {
		affinity = s.cfg.TypeAffinityExact
	}

	score := s.cfg.SeverityWeight*severityScore(event.Severity) + affinity + s.cfg.Baseline

	if s.custom != nil {
		score = (score + s.custom.Score(event, ch)) / 2
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Threshold returns the minimum score an event must reach for the priority.
// Unknown priorities fall back to the normal threshold.
func (s *RelevanceScorer) Threshold(p models.ChannelPriority) float64 {
	if t, ok := s.cfg.Thresholds[p]; ok {
		return t
	}
	return s.cfg.Thresholds[models.PriorityNormal]
}

// severityScore maps event severity onto 0..1. An absent severity scores a
// neutral 0.5; an unrecognized one scores 0.1.
func severityScore(sev models.Severity) float64 {
	switch sev {
	case models.SeverityCritical:
		return 1.0
	case models.SeverityHigh:
		return 0.8
	case models.SeverityMedium:
		return 0.6
	case models.SeverityLow:
		return 0.3
	case "":
		return 0.5
	default:
		return 0.1
	}
}
