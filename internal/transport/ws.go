/*
Package transport implements the event channel the chat core talks through.

This file defines WSChannel, the websocket-backed Channel. It owns the read and
write pumps for the current connection: the read pump decodes envelopes and
dispatches them to registered handlers in delivery order, the write pump drains
the send queue and keeps the connection alive with pings. A WSChannel survives its
connection: after the server drops us (for example on a rejected join) the same
channel can Connect again with fresh credentials, keeping its handlers.
*/
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"relaychat/internal/pkg/errs"
	"relaychat/internal/pkg/logx"
)

const (
	// timeout duration for writing to the websocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed to wait for a Pong from the server.
	pongWait = 60 * time.Second

	// frequency at which the client sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of one inbound frame.
	maxMessageSize = 8192

	// sendQueueSize is the capacity of the outbound queue. A full queue drops the
	// event rather than blocking the caller.
	sendQueueSize = 256
)

// WSChannel is a Channel over one websocket connection at a time.
type WSChannel struct {
	// serverURL is the ws:// or wss:// endpoint to dial.
	serverURL string

	// handlers maps event names to their registered handler. Handlers outlive
	// individual connections.
	handlers   map[string]Handler
	handlersMu sync.RWMutex

	// mu guards the per-connection state below.
	mu        sync.Mutex
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	connected bool

	// structured logger with channel context.
	logger zerolog.Logger
}

// NewWSChannel creates a WSChannel that will dial serverURL on Connect.
func NewWSChannel(serverURL string) *WSChannel {
	return &WSChannel{
		serverURL: serverURL,
		handlers:  make(map[string]Handler),
		logger:    logx.Logger().With().Str("component", "WSChannel").Logger(),
	}
}

// Connect dials the server with username attached as connection credentials and
// starts the read and write pumps. It returns once the websocket is open;
// protocol-level acceptance arrives as events.
func (c *WSChannel) Connect(ctx context.Context, username string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return errs.NewError(errs.ErrAlreadyConnected)
	}

	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL %q: %w", c.serverURL, err)
	}

	q := u.Query()
	q.Set("username", username)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to dial chat server: %w", err)
	}

	c.conn = conn
	c.send = make(chan []byte, sendQueueSize)
	c.done = make(chan struct{})
	c.connected = true

	go c.readPump(conn)
	go c.writePump(conn, c.send, c.done)

	c.logger.Info().Str("server_url", c.serverURL).Msg("Channel connected.")
	return nil
}

// Emit marshals the payload into an envelope and queues it for sending.
func (c *WSChannel) Emit(event string, payload any) error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return errs.NewError(errs.ErrChannelClosed)
	}
	send := c.send
	c.mu.Unlock()

	env, err := NewEnvelope(event, payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %q payload: %w", event, err)
	}

	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal %q envelope: %w", event, err)
	}

	select {
	case send <- frame:
		return nil
	default:
		c.logger.Warn().Str("event", event).Msg("Send queue full, dropping event")
		return fmt.Errorf("send queue full, dropped %q event", event)
	}
}

// On registers the handler for an event name, replacing any previous one.
func (c *WSChannel) On(event string, h Handler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	c.handlers[event] = h
}

// Off removes the handler for an event name.
func (c *WSChannel) Off(event string) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()

	delete(c.handlers, event)
}

// Close tears down the current connection and stops both pumps. Safe to call more
// than once; a later Connect opens a fresh connection.
func (c *WSChannel) Close() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false
	conn := c.conn
	close(c.done)
	c.mu.Unlock()

	// Best effort close frame; the server also detects the plain drop.
	deadline := time.Now().Add(writeWait)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)

	err := conn.Close()

	c.logger.Info().Msg("Channel closed.")
	return err
}

// closeConn tears down the given connection only if it is still the current one,
// so a pump that outlived a reconnect cannot kill the new connection.
func (c *WSChannel) closeConn(conn *websocket.Conn) {
	c.mu.Lock()
	if !c.connected || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.connected = false
	close(c.done)
	c.mu.Unlock()

	_ = conn.Close()
	c.logger.Info().Msg("Channel connection ended.")
}

// readPump reads envelopes off the connection and dispatches them until the
// connection drops or Close is called. Handlers run synchronously here, which is
// what gives the core its single-threaded, run-to-completion event order.
func (c *WSChannel) readPump(conn *websocket.Conn) {
	defer c.closeConn(conn)

	conn.SetReadLimit(maxMessageSize)

	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Connection read ended")
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			c.logger.Warn().Err(err).Bytes("frame", frame).Msg("Server sent invalid envelope")
			continue
		}

		c.dispatch(env)
	}
}

// dispatch hands the envelope to the registered handler, if any.
func (c *WSChannel) dispatch(env Envelope) {
	c.handlersMu.RLock()
	h, ok := c.handlers[env.Event]
	c.handlersMu.RUnlock()

	if !ok {
		c.logger.Debug().Str("event", env.Event).Msg("No handler registered for event")
		return
	}

	h(env.Data)
}

// writePump drains the send queue onto the connection and emits periodic pings
// until done closes or a write fails.
func (c *WSChannel) writePump(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.closeConn(conn)
	}()

	for {
		select {
		case frame := <-send:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline")
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Error().Err(err).Msg("Error writing event")
				return
			}

		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
				return
			}

			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Error().Err(err).Msg("Error writing ping")
				return
			}

		case <-done:
			return
		}
	}
}
