package rest

import (
	"net/http"
	"time"

	"github.com/baechuer/real-time-ressys/services/booking-service/internal/metrics"
	"github.com/baechuer/real-time-ressys/services/booking-service/internal/security"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
)

type RateLimit struct {
	Enabled bool
	Limit   int
	Window  time.Duration
}

type RouterDeps struct {
	Handler  *Handler
	Verifier security.AccessTokenVerifier

	// Limiter is optional; without it httprate keeps per-process counters.
	Limiter   Limiter
	RateLimit RateLimit
}

func NewRouter(d RouterDeps) http.Handler {
	if d.Handler == nil {
		panic("rest.NewRouter: nil handler")
	}
	if d.Verifier == nil {
		panic("rest.NewRouter: nil verifier")
	}

	r := chi.NewRouter()

	// Request ID + structured access log
	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(HTTPLogger)
	r.Use(metrics.Middleware)

	// Panic recovery
	r.Use(middleware.Recoverer)
	r.Use(SecurityHeaders)

	if d.RateLimit.Enabled {
		if d.Limiter != nil {
			r.Use(RateLimitMiddleware(d.Limiter, d.RateLimit.Limit, d.RateLimit.Window))
		} else {
			r.Use(httprate.LimitByIP(d.RateLimit.Limit, d.RateLimit.Window))
		}
	}

	r.Get("/healthz", d.Handler.Healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(d.Verifier))

		r.Get("/me/requests", d.Handler.MyRequests)

		r.Route("/options/{optionID}", func(r chi.Router) {
			r.Put("/", d.Handler.UpsertOption)
			r.Delete("/", d.Handler.DeleteOption)

			r.Get("/status", d.Handler.Status)
			r.Get("/occupancy", d.Handler.Occupancy)
			r.Get("/ledger", d.Handler.Ledger)

			r.Post("/requests", d.Handler.Submit)
			r.Delete("/requests", d.Handler.CancelMany)
			r.Post("/requests/batch", d.Handler.BookFor)
			r.Delete("/requests/me", d.Handler.CancelMine)
			r.Delete("/requests/{userID}", d.Handler.CancelFor)
		})
	})

	return r
}
