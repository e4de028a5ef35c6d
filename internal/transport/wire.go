/*
Package transport implements the event channel the chat core talks through.

This file defines the protocol's event names and payload shapes, shared by the
client core and the reference server.
*/
package transport

// Event names carried in the Envelope. Inbound/outbound direction is from the
// client's point of view.
const (
	// EventMessage broadcasts a public chat line (both directions).
	EventMessage = "message"

	// EventPrivateMessage sends a line to one peer (out: to, in: from).
	EventPrivateMessage = "private message"

	// EventTyping carries the username of someone composing (both directions).
	EventTyping = "typing"

	// EventSession delivers the server-assigned identity right after a join is
	// accepted. Its arrival is the explicit "connected" acknowledgment.
	EventSession = "session"

	// EventUsers delivers the full roster snapshot, sent once on join.
	EventUsers = "users"

	// EventUserConnected announces a peer who joined after this session connected.
	EventUserConnected = "user connected"

	// EventUserDisconnected announces a peer who dropped; data is the bare userID.
	EventUserDisconnected = "user disconnected"

	// EventUsernameTaken rejects a join due to a name collision; data is empty.
	EventUsernameTaken = "username taken"
)

// PublicMessagePayload is the body of EventMessage.
type PublicMessagePayload struct {
	// ID is the sender-assigned idempotency key for the line.
	ID string `json:"id"`

	// Name is the sender's username at send time, frozen into history.
	Name string `json:"name"`

	// Message is the text payload.
	Message string `json:"message"`
}

// PrivateMessagePayload is the body of EventPrivateMessage.
// Clients fill To; the server rewrites the envelope with From before routing.
type PrivateMessagePayload struct {
	Message string `json:"message"`
	To      string `json:"to,omitempty"`
	From    string `json:"from,omitempty"`
}

// SessionPayload is the body of EventSession.
type SessionPayload struct {
	UserID   string `json:"userID"`
	Username string `json:"username"`
}

// UserEntry is one element of the EventUsers snapshot and the body of
// EventUserConnected.
type UserEntry struct {
	UserID   string `json:"userID"`
	Username string `json:"username"`
}
