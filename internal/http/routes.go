// Package httpx is the HTTP adapter for trigger intake and job status polling.
package httpx

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// RouterServices holds the services the router needs.
type RouterServices struct {
	Dispatcher Dispatcher   // Required
	Logger     *slog.Logger // Optional: request and error logging

	// CORSAllowedOrigins enables cross-origin requests from these origins; empty disables CORS.
	CORSAllowedOrigins []string
}

// NewRouter builds the API router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")
	h := &TriggerHandlers{Svc: services.Dispatcher, Logger: logger}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Recover(logger))
	r.Use(Logging(logger))
	if len(services.CORSAllowedOrigins) > 0 {
		r.Use(CORS(services.CORSAllowedOrigins))
	}

	r.Get("/healthz", healthHandler)
	r.Head("/healthz", healthHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Use(RequireTenant)

		r.Route("/triggers", func(r chi.Router) {
			r.Post("/generation", h.Generation)
			r.Post("/grading", h.Grading)
			r.Post("/deletion", h.Deletion)
			r.Post("/notification", h.Notification)
		})

		r.Get("/jobs/stats", h.Stats)
		r.Get("/jobs/{id}", h.JobStatus)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		WriteError(w, ErrorParams{Code: http.StatusMethodNotAllowed, ErrCode: "method_not_allowed"})
	})
	return r
}
