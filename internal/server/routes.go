// Package server wires HTTP handlers into a chi router for the GoChat
// application via routing helpers.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures and returns the router with all application routes.
func SetupRoutes(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(metricsMiddleware)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.origins.corsOrigins(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", h.Health)

	r.Get("/", h.Index)
	r.Route("/a/message", func(r chi.Router) {
		r.Get("/", h.ListMessages)
		r.Post("/new", h.NewMessage)
		r.Post("/updates", h.Updates)
		r.Get("/stream", h.Stream)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		h.Error(w, http.StatusNotFound, "not found")
	})

	return r
}
