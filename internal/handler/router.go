package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/realty-agent/internal/middleware"
	natsclient "github.com/capitalize-ai/realty-agent/internal/nats"
	"github.com/capitalize-ai/realty-agent/internal/service"
	"github.com/capitalize-ai/realty-agent/pkg/logger"
)

// RouterConfig holds what the HTTP surface needs.
type RouterConfig struct {
	Sessions          *service.SessionService
	NATS              *natsclient.Client
	JWTSecret         string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	Logger            *logger.Logger

	// StreamPollInterval overrides how often turn streams check for new
	// turns.
	StreamPollInterval time.Duration
}

// NewRouter builds the API router.
func NewRouter(cfg RouterConfig) http.Handler {
	healthHandler := NewHealthHandler(cfg.NATS, cfg.Sessions)
	sessionHandler := NewSessionHandler(cfg.Sessions, cfg.Logger)
	streamHandler := NewStreamHandler(cfg.Sessions, cfg.Logger)
	if cfg.StreamPollInterval > 0 {
		streamHandler.pollInterval = cfg.StreamPollInterval
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RequireScope(middleware.ScopeChat))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.Delete("/", sessionHandler.Delete)
				r.Post("/start", sessionHandler.Start)

				r.Get("/turns", sessionHandler.Turns)
				r.Get("/turns/stream", streamHandler.Turns)

				r.Group(func(r chi.Router) {
					r.Use(middleware.SessionRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow, SessionID))
					r.Post("/messages", sessionHandler.Send)
					r.Post("/messages/stream", streamHandler.SendMessage)
				})
			})
		})
	})

	return r
}
