package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gregoryb/recordscrape/internal/api"
	apiMiddleware "github.com/gregoryb/recordscrape/internal/api/middleware"
	"github.com/gregoryb/recordscrape/internal/platform/metrics"
)

// setupRouter configures the application router with all routes and
// middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	taskHandler := api.NewTaskHandler(app.manager, app.logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/scrape", taskHandler.Submit)
		r.Get("/task/{id}/status", taskHandler.Status)
		r.Get("/task/{id}/result", taskHandler.Result)
		r.Get("/task/{id}/wait", taskHandler.Wait)
		r.Post("/task/{id}/cancel", taskHandler.Cancel)
		r.Get("/tasks", taskHandler.List)
		r.Get("/pool/stats", taskHandler.PoolStats)
		r.Get("/health", taskHandler.Health)
		r.Method(http.MethodGet, "/metrics", app.metricsHandler())
	})

	return r
}

// metricsHandler registers the engine collector on a dedicated
// registry so repeated application instances in tests cannot collide.
func (app *application) metricsHandler() http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewCollector(app.manager.PoolStats, app.manager.List))
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
