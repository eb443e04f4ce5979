package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/tidewater-labs/plantpulse/internal/api/alerts"
	"github.com/tidewater-labs/plantpulse/internal/api/middleware"
	"github.com/tidewater-labs/plantpulse/internal/api/notifications"
	"github.com/tidewater-labs/plantpulse/internal/api/readings"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	ingestLimiter := middleware.NewRateLimiter(s.config.IngestRatePerMin)

	// Global middleware
	r.Use(middleware.RequestLogger(s.logger, s.config.Verbose))
	r.Use(middleware.Recoverer(s.logger))
	r.Use(middleware.PrometheusMiddleware)

	readingsHandler := readings.NewHandler(s.deps.Coordinator, s.deps.Scorer, s.logger)
	alertsHandler := alerts.NewHandler(s.deps.Manager, s.logger)
	notificationsHandler := notifications.NewHandler(s.deps.Dispatcher, s.logger)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(ingestLimiter))
			r.Post("/readings", readingsHandler.Ingest)
			r.Post("/readings/batch", readingsHandler.IngestBatch)
		})

		r.Get("/series/{device_id}/{sensor_type}/classification", readingsHandler.GetClassification)

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", alertsHandler.List)
			r.Get("/{id}", alertsHandler.Get)
			r.Post("/{id}/acknowledge", alertsHandler.Acknowledge)
			r.Post("/{id}/resolve", alertsHandler.Resolve)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", notificationsHandler.List)
			r.Get("/{job_id}", notificationsHandler.Get)
			r.Post("/{job_id}/outcome", notificationsHandler.ReportOutcome)
		})

		r.Get("/summary", s.handleSummary)
	})

	// Probes (public, no rate limit)
	r.Get("/healthz", s.healthHandler.Health)
	r.Get("/livez", s.healthHandler.Live)
	r.Get("/readyz", s.healthHandler.Ready)

	return r
}
