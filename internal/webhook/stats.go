package webhook

import (
	"context"
	"sort"
	"time"

	"github.com/telhawk-systems/telhawk-dispatch/internal/models"
)

// Stats derives a point-in-time summary from the endpoint and delivery
// collections. Average response time only counts attempts that reached the
// endpoint.
func (e *Engine) Stats(ctx context.Context) (*models.WebhookStats, error) {
	endpoints, err := e.registry.ListEndpoints(ctx)
	if err != nil {
		return nil, err
	}
	deliveries, err := e.store.All(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.WebhookStats{TotalEndpoints: len(endpoints)}
	for _, ep := range endpoints {
		if ep.Status == models.EndpointActive {
			stats.ActiveEndpoints++
		}
	}

	now := e.now()
	var responseTotal int64
	var responseCount int64
	type typeCounts struct {
		total     int
		delivered int
	}
	byType := make(map[string]*typeCounts)

	for _, d := range deliveries {
		stats.TotalDeliveries++
		switch d.Status {
		case models.DeliveryDelivered:
			stats.SuccessfulDeliveries++
		case models.DeliveryFailed:
			stats.FailedDeliveries++
		}

		age := now.Sub(d.CreatedAt)
		if age <= 24*time.Hour {
			stats.DeliveryRate.Last24h++
		}
		if age <= 7*24*time.Hour {
			stats.DeliveryRate.LastWeek++
		}
		if age <= 30*24*time.Hour {
			stats.DeliveryRate.LastMonth++
		}

		for _, a := range d.Attempts {
			if a.HTTPStatus != 0 {
				responseTotal += a.ResponseTimeMs
				responseCount++
			}
		}

		if d.Event != nil {
			tc := byType[d.Event.Type]
			if tc == nil {
				tc = &typeCounts{}
				byType[d.Event.Type] = tc
			}
			tc.total++
			if d.Status == models.DeliveryDelivered {
				tc.delivered++
			}
		}
	}

	if responseCount > 0 {
		stats.AverageResponseTime = float64(responseTotal) / float64(responseCount)
	}

	stats.TopEventTypes = make([]models.EventTypeStat, 0, len(byType))
	for t, tc := range byType {
		rate := 0.0
		if tc.total > 0 {
			rate = float64(tc.delivered) / float64(tc.total)
		}
		stats.TopEventTypes = append(stats.TopEventTypes, models.EventTypeStat{
			EventType:   t,
			Count:       tc.total,
			SuccessRate: rate,
		})
	}
	sort.Slice(stats.TopEventTypes, func(i, j int) bool {
		if stats.TopEventTypes[i].Count != stats.TopEventTypes[j].Count {
			return stats.TopEventTypes[i].Count > stats.TopEventTypes[j].Count
		}
		return stats.TopEventTypes[i].EventType < stats.TopEventTypes[j].EventType
	})
	if len(stats.TopEventTypes) > 5 {
		stats.TopEventTypes = stats.TopEventTypes[:5]
	}

	return stats, nil
}
