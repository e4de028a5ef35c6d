/*
Package handler provides the HTTP handlers and routing setup for the reference
chat server.

This file contains the websocket upgrade handler: rate limiting, credential
validation, the protocol upgrade, and hand-off to the Hub.
*/
package handler

import (
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	"relaychat/internal/pkg/errs"
	"relaychat/internal/pkg/limiter"
	"relaychat/internal/pkg/logx"
	"relaychat/internal/pkg/resp"
	"relaychat/internal/server"
)

// HandleWebSocket creates the HandlerFunc that admits chat connections.
// The username travels as a query parameter — it is the connection credential the
// client attached before dialing. Uniqueness is the Hub's decision, delivered over
// the socket as a "username taken" event rather than an HTTP status.
func HandleWebSocket(hub *server.Hub, upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if ip == "" {
			ip = "unknown_ip"
		}

		if !rateLimiter.GetLimiter(ip).Allow() {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		username := r.URL.Query().Get("username")
		if username == "" {
			logx.Warn("WebSocket request rejected: Missing username credential")
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		hub.Join(conn, username)
	}
}
