package persist

import (
	"encoding/json"
	"fmt"

	"github.com/example/cqrs-es/cqrs"
)

// EventSerializer converts between typed event envelopes and their
// serialized storage form. Deserialization is driven by a registry of
// event-type factories, since the concrete Go type of a stored event is
// only known from its event_type column.
type EventSerializer[E cqrs.DomainEvent] struct {
	factories map[string]func() E
}

// NewEventSerializer creates an empty serializer. Every event type the
// aggregate can emit must be registered before loading.
func NewEventSerializer[E cqrs.DomainEvent]() *EventSerializer[E] {
	return &EventSerializer[E]{factories: make(map[string]func() E)}
}

// Register maps an event type name to a factory producing the zero value
// of the concrete event. The factory must return a pointer so the payload
// can be unmarshaled into it.
func (s *EventSerializer[E]) Register(eventType string, factory func() E) *EventSerializer[E] {
	s.factories[eventType] = factory
	return s
}

// Serialize converts a committed envelope into its storage form.
func (s *EventSerializer[E]) Serialize(aggregateType string, envelope cqrs.EventEnvelope[E]) (SerializedEvent, error) {
	payload, err := json.Marshal(envelope.Payload)
	if err != nil {
		return SerializedEvent{}, &UnknownError{Err: err}
	}
	metadata, err := json.Marshal(envelope.Metadata)
	if err != nil {
		return SerializedEvent{}, &UnknownError{Err: err}
	}
	return SerializedEvent{
		AggregateID:   envelope.AggregateID,
		Sequence:      envelope.Sequence,
		AggregateType: aggregateType,
		EventType:     envelope.Payload.EventType(),
		EventVersion:  envelope.Payload.EventVersion(),
		Payload:       payload,
		Metadata:      metadata,
	}, nil
}

// Deserialize converts a stored event back into a typed envelope. The
// event must already be upcast to a registered type and version.
func (s *EventSerializer[E]) Deserialize(event SerializedEvent) (cqrs.EventEnvelope[E], error) {
	factory, ok := s.factories[event.EventType]
	if !ok {
		return cqrs.EventEnvelope[E]{}, &DeserializationError{
			Err: fmt.Errorf("no factory registered for event type %q", event.EventType),
		}
	}
	payload := factory()
	if err := json.Unmarshal(event.Payload, payload); err != nil {
		return cqrs.EventEnvelope[E]{}, &DeserializationError{Err: err}
	}
	metadata := map[string]string{}
	if len(event.Metadata) > 0 {
		if err := json.Unmarshal(event.Metadata, &metadata); err != nil {
			return cqrs.EventEnvelope[E]{}, &DeserializationError{Err: err}
		}
	}
	return cqrs.EventEnvelope[E]{
		AggregateID: event.AggregateID,
		Sequence:    event.Sequence,
		Payload:     payload,
		Metadata:    metadata,
	}, nil
}
