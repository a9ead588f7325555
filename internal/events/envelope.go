// Package events mirrors hub broadcasts onto a RabbitMQ topic exchange.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RoutingPrefix prefixes every routing key
const RoutingPrefix = "communications."

// Meta describes an emitted event
type Meta struct {
	// Unique event ID
	ID string `json:"id"`
	// Event name, e.g. communications.new_message
	Type string `json:"type"`
	// Timestamp when the event was emitted
	Time time.Time `json:"time"`
	// Emitting service
	Producer *string `json:"producer,omitempty"`
	// Trace / request correlation ID
	CorrelationID *string `json:"correlation_id,omitempty"`
}

// Envelope is the bus message body
type Envelope struct {
	Meta Meta            `json:"meta"`
	Data json.RawMessage `json:"data"`
}

// RoutingKey returns the routing key of a hub event type
func RoutingKey(eventType string) string {
	return RoutingPrefix + eventType
}

// NewEnvelope wraps an encoded hub frame
func NewEnvelope(eventType, producer string, data []byte, now time.Time) Envelope {
	env := Envelope{
		Meta: Meta{
			ID:   uuid.NewString(),
			Type: RoutingKey(eventType),
			Time: now.UTC(),
		},
		Data: json.RawMessage(data),
	}
	if producer != "" {
		env.Meta.Producer = &producer
	}
	return env
}
