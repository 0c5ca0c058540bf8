package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresher reloads every cached collection.
type Refresher interface {
	Refresh(ctx context.Context) error
}

type RouterConfig struct {
	Courses    *CourseHandler
	Bookings   *BookingHandler
	Members    *MemberHandler
	Expenses   *ExpenseHandler
	Registry   *RegistryHandler
	Refresher  Refresher
	Gatherer   prometheus.Gatherer
	Logger     *slog.Logger
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	for _, mw := range cfg.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}
	responder := newResponder(cfg.Logger)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		responder.writeJSON(req.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	if cfg.Refresher != nil {
		r.Post("/refresh", func(w http.ResponseWriter, req *http.Request) {
			if err := cfg.Refresher.Refresh(req.Context()); err != nil {
				responder.handleServiceError(req.Context(), w, err)
				return
			}
			responder.writeJSON(req.Context(), w, http.StatusNoContent, nil)
		})
	}
	if cfg.Courses != nil {
		r.Route("/courses", cfg.Courses.Routes)
	}
	if cfg.Bookings != nil {
		r.Get("/lessons", cfg.Bookings.Lessons)
		r.Route("/bookings", cfg.Bookings.Routes)
	}
	if cfg.Members != nil {
		r.Route("/members", cfg.Members.Routes)
		r.Get("/reports/unpaid", cfg.Members.UnpaidReport)
	}
	if cfg.Expenses != nil {
		r.Route("/expenses", cfg.Expenses.Routes)
	}
	if cfg.Registry != nil {
		r.Route("/pending", cfg.Registry.PendingRoutes)
		r.Route("/census", cfg.Registry.CensusRoutes)
	}

	return r
}
