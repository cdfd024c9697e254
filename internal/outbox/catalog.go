package outbox

import "example.com/carbonledger/internal/events"

// Kafka topics carrying carbon ledger events.
const (
	TopicActivityEvents = "carbon_activity_events"
	TopicOffsetEvents   = "carbon_offset_events"
)

// Route describes where an event type is published and the schema it is framed with.
type Route struct {
	Topic         string
	SchemaSubject string
	Schema        string
}

var routes = map[string]Route{
	events.TypeActivityLogged: {
		Topic:         TopicActivityEvents,
		SchemaSubject: TopicActivityEvents + "-value",
		Schema:        activityLoggedSchema,
	},
	events.TypeOffsetPurchased: {
		Topic:         TopicOffsetEvents,
		SchemaSubject: TopicOffsetEvents + "-value",
		Schema:        offsetPurchasedSchema,
	},
}

// RouteFor returns the route of eventType.
func RouteFor(eventType string) (Route, bool) {
	r, ok := routes[eventType]
	return r, ok
}
