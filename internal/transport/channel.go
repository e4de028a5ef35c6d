/*
Package transport implements the event channel the chat core talks through.

The core only ever sees the Channel interface: a duplex stream of named events with
JSON payloads. The production implementation (WSChannel) runs over a websocket; tests
substitute an in-memory fake. Constructing and injecting the channel explicitly keeps
independent sessions from sharing process state.
*/
package transport

import (
	"context"
	"encoding/json"
)

// Handler consumes the payload of one inbound event. Handlers are invoked
// sequentially on the channel's read goroutine, in delivery order; a handler must
// not block.
type Handler func(data json.RawMessage)

// Channel is a duplex stream of named events.
type Channel interface {
	// Connect establishes the connection, attaching username as the session
	// credentials. It returns once the connection is open; protocol-level
	// acceptance (session vs username taken) arrives as events afterwards.
	Connect(ctx context.Context, username string) error

	// Emit sends one named event with the given payload.
	Emit(event string, payload any) error

	// On registers the handler for an event name, replacing any previous one.
	On(event string, h Handler)

	// Off removes the handler for an event name.
	Off(event string)

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// Envelope is the wire framing for one event in either direction.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an Envelope for event.
func NewEnvelope(event string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{Event: event, Data: data}, nil
}
