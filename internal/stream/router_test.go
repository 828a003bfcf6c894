package stream

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/telhawk-dispatch/internal/models"
)

func newTestRouter(t *testing.T) (*Router, *captureSink) {
	t.Helper()

	sink := &captureSink{}
	router := NewRouter(NewRelevanceScorer(DefaultRelevanceConfig(), nil), nil, nil)
	agg := NewAggregator(sink, 100, router.RecordAggregated, nil)
	router.SetAggregator(agg)
	t.Cleanup(agg.Close)
	return router, sink
}

func TestCreateChannelValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name string
		req  CreateChannelRequest
	}{
		{"missing consumer", CreateChannelRequest{Type: "auth.login.failed"}},
		{"missing type", CreateChannelRequest{ConsumerID: "c1"}},
		{"bad priority", CreateChannelRequest{ConsumerID: "c1", Type: "x", Priority: "urgent"}},
		{"bad filter", CreateChannelRequest{ConsumerID: "c1", Type: "x", Filters: []models.Filter{
			{Field: "source", Operator: "between", Value: 1},
		}}},
		{"negative window", CreateChannelRequest{ConsumerID: "c1", Type: "x", AggregationWindowMs: -5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := router.CreateChannel(tt.req)
			assert.Error(t, err)
		})
	}
}

func TestCreateChannelDefaultsPriority(t *testing.T) {
	router, _ := newTestRouter(t)

	ch, err := router.CreateChannel(CreateChannelRequest{ConsumerID: "c1", Type: "auth.login.failed"})
	require.NoError(t, err)
	assert.Equal(t, models.PriorityNormal, ch.Priority)
	assert.NotEmpty(t, ch.ID)

	got, ok := router.Channel(ch.ID)
	require.True(t, ok)
	assert.Equal(t, "c1", got.ConsumerID)
}

func TestProcessEventRoutesByTypeAndFilters(t *testing.T) {
	router, _ := newTestRouter(t)

	match, err := router.CreateChannel(CreateChannelRequest{
		ConsumerID: "c1",
		Type:       "auth.login.failed",
		Priority:   models.PriorityLow,
	})
	require.NoError(t, err)

	otherType, err := router.CreateChannel(CreateChannelRequest{
		ConsumerID: "c1",
		Type:       "network.anomaly",
		Priority:   models.PriorityLow,
	})
	require.NoError(t, err)

	filtered, err := router.CreateChannel(CreateChannelRequest{
		ConsumerID: "c2",
		Type:       "auth.login.failed",
		Priority:   models.PriorityLow,
		Filters: []models.Filter{
			{Field: "source", Operator: models.OpEquals, Value: "192.168.1.1"},
		},
	})
	require.NoError(t, err)

	routed := router.ProcessEvent(context.Background(), testEvent())

	require.Contains(t, routed, match.ID)
	assert.NotContains(t, routed, otherType.ID)
	assert.NotContains(t, routed, filtered.ID)

	ev := routed[match.ID]
	assert.Equal(t, match.ID, ev.ChannelID)
	assert.Equal(t, models.PriorityLow, ev.Priority)
	assert.Greater(t, ev.RelevanceScore, 0.0)
	assert.False(t, ev.ProcessedAt.IsZero())
}

func TestProcessEventCustomChannelReceivesAllTypes(t *testing.T) {
	router, _ := newTestRouter(t)

	custom, err := router.CreateChannel(CreateChannelRequest{
		ConsumerID: "c1",
		Type:       models.ChannelTypeCustom,
		Priority:   models.PriorityLow,
	})
	require.NoError(t, err)

	routed := router.ProcessEvent(context.Background(), testEvent())
	assert.Contains(t, routed, custom.ID)
}

func TestProcessEventRelevanceGate(t *testing.T) {
	router, _ := newTestRouter(t)

	// A low-severity non-matching-type event scores 0.4*0.3+0.1+0.3 = 0.52,
	// below the critical threshold of 0.9.
	ch, err := router.CreateChannel(CreateChannelRequest{
		ConsumerID: "c1",
		Type:       models.ChannelTypeCustom,
		Priority:   models.PriorityCritical,
	})
	require.NoError(t, err)

	event := &models.EventRecord{Type: "network.anomaly", Severity: models.SeverityLow}
	routed := router.ProcessEvent(context.Background(), event)
	assert.NotContains(t, routed, ch.ID)

	m, ok := router.Metrics(ch.ID)
	require.True(t, ok)
	assert.Equal(t, int64(1), m.EventsFiltered)
	assert.Equal(t, int64(0), m.EventsProcessed)

	// Activity is still recorded on the match.
	got, _ := router.Channel(ch.ID)
	assert.Equal(t, int64(1), got.EventCount)
}

func TestProcessEventWindowedChannelBuffers(t *testing.T) {
	router, sink := newTestRouter(t)

	ch, err := router.CreateChannel(CreateChannelRequest{
		ConsumerID:          "c1",
		Type:                "auth.login.failed",
		Priority:            models.PriorityLow,
		AggregationWindowMs: 60_000,
	})
	require.NoError(t, err)

	routed := router.ProcessEvent(context.Background(), testEvent())
	assert.NotContains(t, routed, ch.ID, "windowed matches are buffered, not returned")

	router.aggregator.Flush(context.Background(), ch.ID)

	aggs := sink.aggregations()
	require.Len(t, aggs, 1)
	assert.Equal(t, ch.ID, aggs[0].ChannelID)
	assert.Equal(t, 1, aggs[0].TotalEvents)

	m, ok := router.Metrics(ch.ID)
	require.True(t, ok)
	assert.Equal(t, int64(1), m.EventsAggregated)
}

func TestUpdateFilters(t *testing.T) {
	router, _ := newTestRouter(t)

	ch, err := router.CreateChannel(CreateChannelRequest{ConsumerID: "c1", Type: "auth.login.failed"})
	require.NoError(t, err)

	ok := router.UpdateFilters(ch.ID, []models.Filter{
		{Field: "source", Operator: models.OpEquals, Value: "10.0.0.5"},
	})
	assert.True(t, ok)

	assert.False(t, router.UpdateFilters("nope", nil))
	assert.False(t, router.UpdateFilters(ch.ID, []models.Filter{
		{Field: "source", Operator: "between", Value: 1},
	}), "invalid filters are rejected")

	got, _ := router.Channel(ch.ID)
	require.Len(t, got.Filters, 1)
	assert.Equal(t, models.OpEquals, got.Filters[0].Operator)
}

func TestCloseChannel(t *testing.T) {
	router, _ := newTestRouter(t)

	ch, err := router.CreateChannel(CreateChannelRequest{
		ConsumerID:          "c1",
		Type:                "auth.login.failed",
		AggregationWindowMs: 60_000,
	})
	require.NoError(t, err)

	assert.True(t, router.CloseChannel(ch.ID))
	assert.False(t, router.CloseChannel(ch.ID), "double close reports false")

	_, ok := router.Channel(ch.ID)
	assert.False(t, ok)
}

func TestCloseAllForConsumer(t *testing.T) {
	router, _ := newTestRouter(t)

	for i := 0; i < 3; i++ {
		_, err := router.CreateChannel(CreateChannelRequest{ConsumerID: "c1", Type: "auth.login.failed"})
		require.NoError(t, err)
	}
	keep, err := router.CreateChannel(CreateChannelRequest{ConsumerID: "c2", Type: "auth.login.failed"})
	require.NoError(t, err)

	assert.Equal(t, 3, router.CloseAllForConsumer("c1"))
	assert.Equal(t, 0, router.CloseAllForConsumer("c1"))

	_, ok := router.Channel(keep.ID)
	assert.True(t, ok, "other consumers' channels survive")
}

func TestProcessEventUpdatesDerivedMetrics(t *testing.T) {
	router, _ := newTestRouter(t)

	ch, err := router.CreateChannel(CreateChannelRequest{
		ConsumerID: "c1",
		Type:       "auth.login.failed",
		Priority:   models.PriorityLow,
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		router.ProcessEvent(context.Background(), testEvent())
	}
	time.Sleep(10 * time.Millisecond)
	router.ProcessEvent(context.Background(), testEvent())

	m, ok := router.Metrics(ch.ID)
	require.True(t, ok)
	assert.Equal(t, int64(6), m.EventsProcessed)
	assert.Equal(t, 1.0, m.FilterEfficiency)
	assert.Greater(t, m.ThroughputPerSecond, 0.0)
}

// orderScorer records the channel ids it is asked to score, in call order.
type orderScorer struct {
	visited []string
}

func (s *orderScorer) Score(event *models.EventRecord, ch *models.Channel) float64 {
	s.visited = append(s.visited, ch.ID)
	return 1.0
}

func TestProcessEventVisitsChannelsByDescendingPriority(t *testing.T) {
	recorder := &orderScorer{}
	router := NewRouter(NewRelevanceScorer(DefaultRelevanceConfig(), recorder), nil, nil)

	byPriority := make(map[models.ChannelPriority]string)
	for _, p := range []models.ChannelPriority{
		models.PriorityLow, models.PriorityCritical, models.PriorityNormal, models.PriorityHigh,
	} {
		ch, err := router.CreateChannel(CreateChannelRequest{
			ConsumerID: "ordering-consumer",
			Type:       "malware.detected",
			Priority:   p,
		})
		require.NoError(t, err)
		byPriority[p] = ch.ID
	}

	event := &models.EventRecord{
		ID:       "evt-1",
		Type:     "malware.detected",
		Severity: models.SeverityCritical,
	}
	out := router.ProcessEvent(context.Background(), event)
	require.Len(t, out, 4, "a perfect score passes every threshold")

	require.Len(t, recorder.visited, 4)
	assert.Equal(t, []string{
		byPriority[models.PriorityCritical],
		byPriority[models.PriorityHigh],
		byPriority[models.PriorityNormal],
		byPriority[models.PriorityLow],
	}, recorder.visited, "the critical channel's side effects land first")
}

func TestProcessEventBreaksPriorityTiesByChannelID(t *testing.T) {
	recorder := &orderScorer{}
	router := NewRouter(NewRelevanceScorer(DefaultRelevanceConfig(), recorder), nil, nil)

	var ids []string
	for i := 0; i < 3; i++ {
		ch, err := router.CreateChannel(CreateChannelRequest{
			ConsumerID: "tie-consumer",
			Type:       "malware.detected",
			Priority:   models.PriorityHigh,
		})
		require.NoError(t, err)
		ids = append(ids, ch.ID)
	}
	sort.Strings(ids)

	router.ProcessEvent(context.Background(), &models.EventRecord{
		ID:       "evt-1",
		Type:     "malware.detected",
		Severity: models.SeverityCritical,
	})
	assert.Equal(t, ids, recorder.visited)
}
