/*
Package server implements the reference chat server the client core is written
against.

This file defines the server-side Client: one live websocket connection and its
read/write pumps. The read pump parses inbound envelopes and hands them to the
Hub; the write pump drains the send queue and keeps the connection alive with
pings.
*/
package server

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"relaychat/internal/pkg/logx"
	"relaychat/internal/transport"
)

const (
	// timeout duration for writing to the websocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192

	// sendQueueSize is the capacity of the per-client outbound queue.
	sendQueueSize = 256
)

// Client represents one connected chat participant.
type Client struct {
	hub *Hub

	// underlying websocket connection.
	conn *websocket.Conn

	// id is the server-assigned opaque identifier for this connection.
	id string

	// username is the display name the client joined with.
	username string

	// send queues marshaled envelopes for the write pump.
	send chan []byte

	// stopOnce guards closing the send queue.
	stopOnce sync.Once

	// structured logger with client context.
	logger zerolog.Logger
}

// newClient constructs a Client for an accepted connection.
func newClient(hub *Hub, conn *websocket.Conn, id, username string) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		id:       id,
		username: username,
		send:     make(chan []byte, sendQueueSize),
		logger: logx.Logger().With().
			Str("component", "Client").
			Str("client_id", id).
			Str("username", username).
			Logger(),
	}
}

// enqueue marshals one event for this client. A full queue drops the event; a
// client that slow is about to be disconnected by the ping deadline anyway.
func (c *Client) enqueue(event string, payload any) {
	env, err := transport.NewEnvelope(event, payload)
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("Failed to build envelope")
		return
	}

	frame, err := json.Marshal(env)
	if err != nil {
		c.logger.Error().Err(err).Str("event", event).Msg("Failed to marshal envelope")
		return
	}

	select {
	case c.send <- frame:
	default:
		c.logger.Warn().Str("event", event).Msg("Client send queue full, dropping event")
	}
}

// stop closes the send queue, which ends the write pump and the connection.
func (c *Client) stop() {
	c.stopOnce.Do(func() {
		close(c.send)
	})
}

// readPump reads envelopes from the client until the connection drops, then
// unregisters the client from the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Connection read ended")
			}
			return
		}

		c.processInbound(frame)
	}
}

// processInbound dispatches one client frame to the hub.
func (c *Client) processInbound(frame []byte) {
	var env transport.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		c.logger.Warn().Err(err).Bytes("frame", frame).Msg("Client sent invalid envelope")
		return
	}

	switch env.Event {
	case transport.EventMessage:
		var p transport.PublicMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.logger.Warn().Err(err).Msg("Client sent invalid public message payload")
			return
		}
		if p.Message == "" {
			return
		}
		c.hub.broadcastPublic(p)

	case transport.EventPrivateMessage:
		var p transport.PrivateMessagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			c.logger.Warn().Err(err).Msg("Client sent invalid private message payload")
			return
		}
		if p.Message == "" || p.To == "" {
			return
		}
		c.hub.sendPrivate(c, p)

	case transport.EventTyping:
		var username string
		if err := json.Unmarshal(env.Data, &username); err != nil {
			c.logger.Warn().Err(err).Msg("Client sent invalid typing payload")
			return
		}
		c.hub.broadcastTyping(c, username)

	default:
		c.logger.Warn().Str("event", env.Event).Msg("Client sent unsupported event")
	}
}

// writePump drains the send queue onto the connection and emits periodic pings.
// It ends when the queue is closed by stop or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline")
				return
			}

			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Error().Err(err).Msg("Error writing event")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error().Err(err).Msg("Error writing ping")
				return
			}
		}
	}
}
