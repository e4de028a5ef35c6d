/*
Package session gates the client between its unauthenticated and connected states
and exposes the single action surface of the chat core.

This file defines the read side: a plain state snapshot for rendering. The
snapshot is a deep copy, so renderers can hold it across event turns without ever
observing a half-applied reducer.
*/
package session

import (
	"relaychat/internal/app/conversation"
	"relaychat/internal/app/roster"
	"relaychat/internal/pkg/randx"
)

// Snapshot is one consistent view of the whole client state.
type Snapshot struct {
	// Connected reports whether the session handshake has completed.
	Connected bool

	// SelfID is the server-assigned identity of this session, "" before join.
	SelfID string

	// Username is the display name this session joined with.
	Username string

	// SelectedPeer is the ID of the peer targeted for private messages, "" for none.
	SelectedPeer string

	// Users is the roster in display order: self first, then username ascending
	// as of the last snapshot, with later joiners appended.
	Users []roster.User

	// PublicFeed is the public broadcast history in receipt order.
	PublicFeed []conversation.Message

	// Typing is the username of the most recent typer, "" when idle.
	Typing string
}

// Snapshot returns a deep copy of the current state, safe for any goroutine.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		Connected:    c.connected,
		SelfID:       c.selfID,
		Username:     c.username,
		SelectedPeer: c.selected,
		Users:        c.users.Users(),
		PublicFeed:   c.feed.Messages(),
		Typing:       c.typing.Current(),
	}
}

// newMessageID mints an idempotency key for an outbound public message.
func newMessageID() string {
	return randx.MessageID()
}
