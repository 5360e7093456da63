package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"room-relay/internal/config"
	"room-relay/internal/middleware"
	"room-relay/internal/relay"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Socket clients connect from anywhere; identity is client-supplied.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewRouter wires the HTTP surface: the WebSocket upgrade, health and
// Prometheus endpoints.
func NewRouter(logger zerolog.Logger, cfg *config.Config, hub *relay.Hub, start time.Time) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", healthHandler(hub, start))
	r.Get("/ws", serveWS(logger, cfg, hub))

	return r
}

func serveWS(logger zerolog.Logger, cfg *config.Config, hub *relay.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error().Err(err).Msg("websocket upgrade failed")
			return
		}

		limiter := middleware.NewRateLimiter(cfg.RateLimitBurst, cfg.RateLimitInterval)
		client := relay.NewClient(uuid.NewString(), conn, hub, limiter, logger)

		hub.Register <- client

		go client.WritePump()
		go client.ReadPump()
	}
}

func healthHandler(hub *relay.Hub, start time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := hub.Snapshot()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":       "ok",
			"uptime":       time.Since(start).String(),
			"connections":  stats.Connections,
			"rooms":        stats.Rooms,
			"pendingJoins": stats.PendingJoins,
		})
	}
}

func requestLogger(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Str("request_id", chimw.GetReqID(r.Context())).
					Str("remote_addr", r.RemoteAddr).
					Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
