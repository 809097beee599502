package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/vantagecrm/hookd/internal/config"
	"github.com/vantagecrm/hookd/internal/dispatch"
	"github.com/vantagecrm/hookd/internal/ratelimit"
	"github.com/vantagecrm/hookd/internal/storage"
	"github.com/vantagecrm/hookd/internal/usage"
)

type Server struct {
	cfg        config.ServerConfig
	store      storage.Storage
	dispatcher *dispatch.Dispatcher
	limiter    *ratelimit.Limiter
	agg        *usage.Aggregator
	router     *chi.Mux
	log        zerolog.Logger
	http       *http.Server
}

func NewServer(cfg config.ServerConfig, store storage.Storage, dispatcher *dispatch.Dispatcher, limiter *ratelimit.Limiter, agg *usage.Aggregator, log zerolog.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		store:      store,
		dispatcher: dispatcher,
		limiter:    limiter,
		agg:        agg,
		log:        log,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.log))

	accHandler := NewAccountHandler(s.store)
	whHandler := NewWebhookHandler(s.store, s.dispatcher)
	evHandler := NewEventHandler(s.store, s.dispatcher)
	dlvHandler := NewDeliveryHandler(s.store, s.dispatcher)
	usageHandler := NewUsageHandler(s.store, s.agg)
	statsHandler := NewStatsHandler(s.store)

	// Health check and metrics — no auth
	r.Get("/health", statsHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Account management — no bearer auth (admin routes)
		r.Post("/accounts", accHandler.Create)
		r.Get("/accounts", accHandler.List)
		r.Get("/accounts/{id}", accHandler.Get)
		r.Delete("/accounts/{id}", accHandler.Delete)
		r.Post("/accounts/{id}/rotate-key", accHandler.RotateKey)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(s.store))
			r.Use(RateLimitMiddleware(s.limiter, s.log))

			// Event catalog and ingestion
			r.Get("/events/definitions", evHandler.Definitions)
			r.Post("/events/emit", evHandler.Emit)
			r.Get("/events", evHandler.History)

			// Webhooks
			r.Post("/webhooks", whHandler.Create)
			r.Get("/webhooks", whHandler.List)
			r.Get("/webhooks/{id}", whHandler.Get)
			r.Put("/webhooks/{id}", whHandler.Update)
			r.Delete("/webhooks/{id}", whHandler.Delete)
			r.Patch("/webhooks/{id}/toggle", whHandler.Toggle)
			r.Post("/webhooks/{id}/test", whHandler.Test)
			r.Get("/webhooks/{id}/deliveries", whHandler.Deliveries)

			// Delivery attempts
			r.Get("/deliveries/{id}", dlvHandler.Get)
			r.Get("/deliveries/{id}/chain", dlvHandler.Chain)
			r.Post("/deliveries/{id}/retry", dlvHandler.Retry)

			// Usage and stats
			r.Get("/usage/records", usageHandler.Records)
			r.Get("/usage/summaries", usageHandler.Summaries)
			r.Post("/usage/recompute", usageHandler.Recompute)
			r.Get("/stats", statsHandler.Stats)
		})
	})

	return r
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info().Str("addr", addr).Msg("starting HTTP server")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
