package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/telhawk-dispatch/internal/models"
)

// setMetrics overwrites a channel's observed metrics directly; the decision
// table needs precise inputs.
func setMetrics(t *testing.T, router *Router, channelID string, latency, throughput float64) {
	t.Helper()

	router.mu.Lock()
	defer router.mu.Unlock()
	st, ok := router.channels[channelID]
	require.True(t, ok)
	st.metrics.AverageLatency = latency
	st.metrics.ThroughputPerSecond = throughput
}

func TestRecommendRateNoChannels(t *testing.T) {
	router, _ := newTestRouter(t)
	advisor := NewThrottleAdvisor(router, DefaultThrottleConfig())

	rec := advisor.RecommendRate("ghost")
	assert.Equal(t, models.ThrottleNone, rec.ThrottleLevel)
	assert.Equal(t, 1000.0, rec.RecommendedRate)
	assert.Equal(t, "ghost", rec.ConsumerID)
}

func TestRecommendRateDecisionTable(t *testing.T) {
	tests := []struct {
		name       string
		latency    float64
		throughput float64
		wantLevel  models.ThrottleLevel
		wantRate   float64
	}{
		{"heavy on high latency", 1500, 400, models.ThrottleHeavy, 200},
		{"heavy rate floor", 1500, 4, models.ThrottleHeavy, 10},
		{"moderate on elevated latency", 600, 400, models.ThrottleModerate, 280},
		{"moderate rate floor", 600, 20, models.ThrottleModerate, 50},
		{"light on high throughput", 100, 2000, models.ThrottleLight, 1600},
		{"none within limits", 100, 400, models.ThrottleNone, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(t)
			advisor := NewThrottleAdvisor(router, DefaultThrottleConfig())

			ch, err := router.CreateChannel(CreateChannelRequest{ConsumerID: "c1", Type: "x"})
			require.NoError(t, err)
			setMetrics(t, router, ch.ID, tt.latency, tt.throughput)

			rec := advisor.RecommendRate("c1")
			assert.Equal(t, tt.wantLevel, rec.ThrottleLevel)
			assert.InDelta(t, tt.wantRate, rec.RecommendedRate, 1e-9)
			assert.NotEmpty(t, rec.Reason)
		})
	}
}

func TestRecommendRateAveragesAcrossChannels(t *testing.T) {
	router, _ := newTestRouter(t)
	advisor := NewThrottleAdvisor(router, DefaultThrottleConfig())

	a, err := router.CreateChannel(CreateChannelRequest{ConsumerID: "c1", Type: "x"})
	require.NoError(t, err)
	b, err := router.CreateChannel(CreateChannelRequest{ConsumerID: "c1", Type: "y"})
	require.NoError(t, err)

	// 1800 and 200 average to 1000, which does not exceed the heavy bound;
	// it lands in the moderate bucket.
	setMetrics(t, router, a.ID, 1800, 100)
	setMetrics(t, router, b.ID, 200, 100)

	rec := advisor.RecommendRate("c1")
	assert.Equal(t, models.ThrottleModerate, rec.ThrottleLevel)
	assert.InDelta(t, 140.0, rec.RecommendedRate, 1e-9)
}
