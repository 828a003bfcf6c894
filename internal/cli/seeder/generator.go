// Package seeder generates synthetic security events for development and
// load testing.
package seeder

import (
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/telhawk-systems/telhawk-dispatch/internal/webhook"
)

var eventTypes = []string{
	"auth.login.failed",
	"auth.login.success",
	"auth.privilege.escalation",
	"malware.detected",
	"network.anomaly",
	"network.port.scan",
	"policy.violation",
	"data.exfiltration",
}

var severities = []string{"low", "medium", "high", "critical"}

// Generator produces randomized security events.
type Generator struct {
	faker *gofakeit.Faker
	rng   *rand.Rand
}

// NewGenerator creates a Generator. A fixed seed gives reproducible output.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		faker: gofakeit.New(seed),
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// EventTypes returns the catalog of generated types.
func EventTypes() []string {
	return append([]string(nil), eventTypes...)
}

// Next produces one synthetic event ready for the trigger API.
func (g *Generator) Next() webhook.TriggerEventRequest {
	eventType := eventTypes[g.rng.Intn(len(eventTypes))]
	severity := severities[g.rng.Intn(len(severities))]
	sourceIP := g.faker.IPv4Address()

	return webhook.TriggerEventRequest{
		Type:   eventType,
		Source: sourceIP,
		Data: map[string]interface{}{
			"severity":    severity,
			"target":      g.faker.DomainName(),
			"user":        g.faker.Username(),
			"description": g.describe(eventType),
		},
		Metadata: map[string]interface{}{
			"host":       g.faker.AppName(),
			"user_agent": g.faker.UserAgent(),
			"country":    g.faker.CountryAbr(),
		},
	}
}

func (g *Generator) describe(eventType string) string {
	switch eventType {
	case "auth.login.failed":
		return "failed login attempt for " + g.faker.Username()
	case "auth.privilege.escalation":
		return "privilege escalation to " + g.faker.JobTitle()
	case "malware.detected":
		return "malware signature " + g.faker.UUID() + " detected"
	case "data.exfiltration":
		return "unusual outbound transfer to " + g.faker.IPv4Address()
	default:
		return g.faker.HackerPhrase()
	}
}
