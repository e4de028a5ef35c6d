/*
Package server implements the reference chat server the client core is written
against: one global broadcast room with username-gated joins, private routing and
typing fanout.

This file defines the Hub, which tracks every live connection and implements the
event semantics the client relies on: public lines echo to every client including
the sender, private lines reach only their target, typing reaches everyone but the
typer, and joins are rejected while the requested username is active.
*/
package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"relaychat/internal/pkg/logx"
	"relaychat/internal/pkg/randx"
	"relaychat/internal/transport"
)

// Hub coordinates all connected clients of the single broadcast room.
type Hub struct {
	// mu protects concurrent access to the clients map.
	mu sync.RWMutex

	// clients maps server-assigned userID to the live connection.
	clients map[string]*Client

	// structured logger with Hub context.
	logger zerolog.Logger
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logx.Logger().With().Str("component", "Hub").Logger(),
	}
}

// Join admits a freshly upgraded connection under the requested username.
// An active duplicate username rejects the join: the connection receives a
// "username taken" event and is closed, leaving it free to retry with another
// name. An accepted client receives its session identity followed by the full
// roster snapshot, while everyone else learns about the newcomer.
func (h *Hub) Join(conn *websocket.Conn, username string) {
	h.mu.Lock()

	if h.usernameActiveLocked(username) {
		h.mu.Unlock()
		h.rejectUsernameTaken(conn, username)
		return
	}

	client := newClient(h, conn, randx.UserID(), username)
	h.clients[client.id] = client

	entries := make([]transport.UserEntry, 0, len(h.clients))
	for _, c := range h.clients {
		entries = append(entries, transport.UserEntry{UserID: c.id, Username: c.username})
	}

	// Queue the acknowledgment and the snapshot while still holding the lock.
	// enqueue never blocks, and a concurrent join or leave must not slip a
	// presence event into this client's queue ahead of its snapshot: the
	// snapshot is sent exactly once, so a roster built on top of a stale one
	// would never converge.
	client.enqueue(transport.EventSession, transport.SessionPayload{
		UserID:   client.id,
		Username: client.username,
	})
	client.enqueue(transport.EventUsers, entries)

	joined := transport.UserEntry{UserID: client.id, Username: client.username}
	for _, other := range h.othersLocked(client.id) {
		other.enqueue(transport.EventUserConnected, joined)
	}

	h.mu.Unlock()

	go client.writePump()

	h.logger.Info().
		Str("client_id", client.id).
		Str("username", client.username).
		Int("total_users", len(entries)).
		Msg("Client joined.")

	client.readPump()
}

// usernameActiveLocked reports whether a connected client already holds username.
// Caller must hold h.mu.
func (h *Hub) usernameActiveLocked(username string) bool {
	for _, c := range h.clients {
		if c.username == username {
			return true
		}
	}
	return false
}

// othersLocked returns every client except the one with the given id.
// Caller must hold h.mu.
func (h *Hub) othersLocked(exceptID string) []*Client {
	others := make([]*Client, 0, len(h.clients))
	for id, c := range h.clients {
		if id != exceptID {
			others = append(others, c)
		}
	}
	return others
}

// rejectUsernameTaken answers a join with the rejection event and drops the
// connection without ever registering it.
func (h *Hub) rejectUsernameTaken(conn *websocket.Conn, username string) {
	h.logger.Info().Str("username", username).Msg("Join rejected: username taken.")

	env, err := transport.NewEnvelope(transport.EventUsernameTaken, nil)
	if err == nil {
		if frame, err := json.Marshal(env); err == nil {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.TextMessage, frame)
		}
	}

	_ = conn.Close()
}

// leave unregisters the client and announces the drop to everyone left.
func (h *Hub) leave(client *Client) {
	h.mu.Lock()
	current, ok := h.clients[client.id]
	if !ok || current != client {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client.id)

	// Broadcast under the lock so the disconnect cannot be queued to a client
	// still waiting for its roster snapshot (which would then resurrect the
	// departed user).
	remaining := h.othersLocked(client.id)
	for _, other := range remaining {
		other.enqueue(transport.EventUserDisconnected, client.id)
	}
	h.mu.Unlock()

	client.stop()

	h.logger.Info().
		Str("client_id", client.id).
		Str("username", client.username).
		Int("total_users", len(remaining)).
		Msg("Client left.")
}

// broadcastPublic delivers a public line to every client, the sender included —
// the sender's own feed entry comes from this echo, not from a local append.
func (h *Hub) broadcastPublic(p transport.PublicMessagePayload) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		c.enqueue(transport.EventMessage, p)
	}
}

// sendPrivate routes a private line to its target only. The sender gets no echo;
// an unknown or already disconnected target drops the line.
func (h *Hub) sendPrivate(from *Client, p transport.PrivateMessagePayload) {
	h.mu.RLock()
	target, ok := h.clients[p.To]
	h.mu.RUnlock()

	if !ok {
		h.logger.Debug().Str("to", p.To).Msg("Dropping private message to unknown target")
		return
	}

	target.enqueue(transport.EventPrivateMessage, transport.PrivateMessagePayload{
		Message: p.Message,
		From:    from.id,
	})
}

// broadcastTyping fans the typing indicator out to everyone except the typer.
func (h *Hub) broadcastTyping(from *Client, username string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, c := range h.clients {
		if id != from.id {
			c.enqueue(transport.EventTyping, username)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Shutdown drops every client. Used for graceful server shutdown.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		c.stop()
	}

	h.logger.Info().Msg("Hub shutdown complete.")
}
