package natsio

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/telhawk-systems/telhawk-dispatch/internal/models"
)

func TestSubjectNames(t *testing.T) {
	assert.Equal(t, "security.events.detected", SubjectEventsDetected)
	assert.Equal(t, "dispatch.webhooks.events", SubjectWebhookEvents)
	assert.Equal(t, "dispatch.channels.ch-1", ChannelSubject("ch-1"))
	assert.Equal(t, "dispatch.aggregations.ch-1", AggregationSubject("ch-1"))
}

func TestTriggerRequestMapping(t *testing.T) {
	event := &models.EventRecord{
		ID:          "evt-1",
		Type:        "malware.detected",
		Severity:    models.SeverityCritical,
		Source:      "10.0.0.5",
		Target:      "db-primary.internal",
		Description: "malware signature detected",
		Metadata:    map[string]interface{}{"host": "web-01"},
	}

	req := triggerRequest(event)

	assert.Equal(t, "malware.detected", req.Type)
	assert.Equal(t, "10.0.0.5", req.Source)
	assert.Equal(t, "critical", req.Data["severity"])
	assert.Equal(t, "db-primary.internal", req.Data["target"])
	assert.Equal(t, "malware signature detected", req.Data["description"])
	assert.Equal(t, "web-01", req.Metadata["host"])
}
