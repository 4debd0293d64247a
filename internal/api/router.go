package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/hackgods/dental-agenda/internal/appointment"
	"github.com/hackgods/dental-agenda/internal/integration"
	"github.com/hackgods/dental-agenda/internal/metrics"
)

type RouterConfig struct {
	Service      *appointment.Service
	Dispatcher   *integration.Dispatcher
	Integrations integration.Store
	Postgres     Pinger
	// Redis is nil when locks are process-local.
	Redis   Pinger
	Logger  zerolog.Logger
	Env     string
	Version string
	// RateRPS <= 0 disables rate limiting.
	RateRPS   float64
	RateBurst int
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(MetricsMiddleware)

	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if cfg.RateRPS > 0 {
			r.Use(NewRateLimiter(cfg.RateRPS, cfg.RateBurst).Handler)
		}

		svc := cfg.Service
		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", createAppointmentHandler(svc))
			r.Get("/", listAppointmentsHandler(svc))
			r.Get("/summary", summaryHandler(svc))

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", getAppointmentHandler(svc))
				r.Put("/", updateAppointmentHandler(svc))
				r.Delete("/", transitionHandler(svc, appointment.TransitionCancel))

				r.Post("/confirm", transitionHandler(svc, appointment.TransitionConfirm))
				r.Post("/start", transitionHandler(svc, appointment.TransitionStart))
				r.Post("/complete", transitionHandler(svc, appointment.TransitionComplete))
				r.Post("/no-show", transitionHandler(svc, appointment.TransitionNoShow))
				r.Post("/cancel", transitionHandler(svc, appointment.TransitionCancel))

				r.Post("/sync", resyncHandler(svc, cfg.Dispatcher))
				r.Get("/sync-logs", appointmentSyncLogsHandler(cfg.Integrations))
			})
		})

		r.Get("/sync-logs", syncLogsHandler(cfg.Integrations))
		r.Get("/integrations/{type}", getIntegrationHandler(cfg.Integrations))
		r.Put("/integrations/{type}", putIntegrationHandler(cfg.Integrations))
	})

	return r
}
