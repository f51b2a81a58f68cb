// Package admin serves the HTTP admin API for filters, functions and counters.
package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// Router builds the chi router for the admin API, rooted at "/"
func Router(handlers *AdminHandlers) chi.Router {
	r := chi.NewRouter()

	// Unauthenticated so load balancers can probe it
	r.Get("/health", handlers.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware)

		r.Get("/filters", handlers.handleListFilters)
		r.Post("/filters", handlers.handleDeclareFilter)
		r.Get("/functions", handlers.handleFunctions)

		r.Route("/counters", func(r chi.Router) {
			r.Get("/", handlers.handleTopCounters)
			r.Get("/{word}", handlers.handleCounter)
		})

		r.Get("/sinks", handlers.handleSinks)
	})

	return r
}

// RegisterRoutes mounts the admin API under /admin
func RegisterRoutes(mux *http.ServeMux, handlers *AdminHandlers) {
	mux.Handle("/admin", http.RedirectHandler("/admin/", http.StatusMovedPermanently))
	mux.Handle("/admin/", http.StripPrefix("/admin", Router(handlers)))

	log.Info().Msg("Admin endpoints enabled at /admin/*")
}
