package outbox

// Event is the envelope written to outbox_events. The relay publishes it to the kafka topic
// named after EventType, keyed by AggregateID.
type Event struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
