// Package natsio wires the dispatcher to NATS: inbound security events
// arrive on a queue-subscribed subject, routed output fans out on
// per-channel subjects.
package natsio

// Subject layout. Consumers subscribe to their channel subject after
// creating the channel through the operator API.
const (
	SubjectEventsDetected = "security.events.detected"
	SubjectWebhookEvents  = "dispatch.webhooks.events"

	channelSubjectPrefix     = "dispatch.channels."
	aggregationSubjectPrefix = "dispatch.aggregations."

	// QueueGroup load-balances inbound events across dispatcher replicas.
	QueueGroup = "dispatch-workers"
)

// ChannelSubject returns the subject carrying immediate routed events for
// one channel.
func ChannelSubject(channelID string) string {
	return channelSubjectPrefix + channelID
}

// AggregationSubject returns the subject carrying window aggregations for
// one channel.
func AggregationSubject(channelID string) string {
	return aggregationSubjectPrefix + channelID
}
