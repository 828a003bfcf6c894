package stream

import (
	"fmt"

	"github.com/telhawk-systems/telhawk-dispatch/internal/models"
)

// ThrottleConfig holds the advisor's decision thresholds. Defaults mirror
// the stock table; deployments can loosen them per consumer population.
type ThrottleConfig struct {
	DefaultRate        float64 `mapstructure:"default_rate"`
	HeavyLatencyMs     float64 `mapstructure:"heavy_latency_ms"`
	ModerateLatencyMs  float64 `mapstructure:"moderate_latency_ms"`
	LightThroughputEps float64 `mapstructure:"light_throughput_eps"`
}

// DefaultThrottleConfig returns the stock decision thresholds.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		DefaultRate:        1000,
		HeavyLatencyMs:     1000,
		ModerateLatencyMs:  500,
		LightThroughputEps: 1000,
	}
}

// ThrottleAdvisor recommends a safe per-consumer delivery rate from the
// latency and throughput observed across the consumer's channels. The
// recommendation is advisory: the router never drops events on this
// signal, the transport layer enforces it.
type ThrottleAdvisor struct {
	router *Router
	cfg    ThrottleConfig
}

// NewThrottleAdvisor creates an advisor reading from the router's metrics.
func NewThrottleAdvisor(router *Router, cfg ThrottleConfig) *ThrottleAdvisor {
	return &ThrottleAdvisor{router: router, cfg: cfg}
}

// RecommendRate evaluates the decision table in order, first match wins.
func (a *ThrottleAdvisor) RecommendRate(consumerID string) models.ThrottleRecommendation {
	channelMetrics := a.router.ConsumerMetrics(consumerID)

	rec := models.ThrottleRecommendation{ConsumerID: consumerID}

	if len(channelMetrics) == 0 {
		rec.ThrottleLevel = models.ThrottleNone
		rec.RecommendedRate = a.cfg.DefaultRate
		rec.Reason = "no active channels"
		return rec
	}

	var totalThroughput, latencySum float64
	for _, m := range channelMetrics {
		totalThroughput += m.ThroughputPerSecond
		latencySum += m.AverageLatency
	}
	avgLatency := latencySum / float64(len(channelMetrics))

	switch {
	case avgLatency > a.cfg.HeavyLatencyMs:
		rec.ThrottleLevel = models.ThrottleHeavy
		rec.RecommendedRate = maxFloat(totalThroughput*0.5, 10)
		rec.Reason = fmt.Sprintf("average latency %.0fms exceeds %.0fms", avgLatency, a.cfg.HeavyLatencyMs)
	case avgLatency > a.cfg.ModerateLatencyMs:
		rec.ThrottleLevel = models.ThrottleModerate
		rec.RecommendedRate = maxFloat(totalThroughput*0.7, 50)
		rec.Reason = fmt.Sprintf("average latency %.0fms exceeds %.0fms", avgLatency, a.cfg.ModerateLatencyMs)
	case totalThroughput > a.cfg.LightThroughputEps:
		rec.ThrottleLevel = models.ThrottleLight
		rec.RecommendedRate = maxFloat(totalThroughput*0.8, 100)
		rec.Reason = fmt.Sprintf("throughput %.0f events/sec exceeds %.0f", totalThroughput, a.cfg.LightThroughputEps)
	default:
		rec.ThrottleLevel = models.ThrottleNone
		rec.RecommendedRate = totalThroughput
		rec.Reason = "within limits"
	}

	return rec
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
