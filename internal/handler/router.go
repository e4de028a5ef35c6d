/*
Package handler provides the HTTP handlers and routing setup for the reference
chat server.

This file defines the main Router, applying logging, CORS and IP-based rate
limiting before delegating to the websocket upgrade handler.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"relaychat/internal/configs"
	"relaychat/internal/pkg/limiter"
	"relaychat/internal/pkg/logx"
	"relaychat/internal/pkg/resp"
	"relaychat/internal/server"
)

const (
	// JoinRate and JoinBurst bound how often one IP may open connections.
	JoinRate  = 0.5
	JoinBurst = 5

	// HealthRate and HealthBurst bound unauthenticated polling of /health.
	HealthRate  = 5
	HealthBurst = 10
)

// Router sets up the HTTP routing table (chi.Router) for the reference server.
func Router(hub *server.Hub, cfg *configs.AppConfig) http.Handler {
	joinLimiter := limiter.NewIPRateLimiter(rate.Limit(JoinRate), JoinBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range cfg.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	wsUpgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if cfg.IsDevelopment() {
				return true
			}

			// Non-browser clients send no Origin header; allow them.
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if cfg.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(cfg.AllowedOrigins) > 0 {
		corsAllowedOrigins = cfg.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	healthLimiter := limiter.NewIPRateLimiter(rate.Limit(HealthRate), HealthBurst)
	r.With(healthLimiter.Middleware).Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]any{
			"status":  "ok",
			"service": "relaychat server",
			"clients": hub.ClientCount(),
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Get("/ws", HandleWebSocket(hub, wsUpgrader, joinLimiter))

	return r
}
