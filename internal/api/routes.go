package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/textdispatch/internal/config"
)

// SetupRoutes configures all API routes.
func SetupRoutes(cfg config.ServerConfig, h *Handlers, health *HealthChecker) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	if health != nil {
		r.Get("/health", health.HandleHealth)
		r.Get("/health/live", health.HandleLiveness)
		r.Get("/health/ready", health.HandleReadiness)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/batches", h.HandleUpload)
		r.Route("/batches/{id}", func(r chi.Router) {
			r.Get("/preview", h.HandlePreview)
			r.Put("/templates", h.HandleUpdateTemplates)
			r.Post("/send", h.HandleSend)
			r.Post("/cancel", h.HandleCancel)
			r.Get("/results", h.HandleResults)
		})
		r.Get("/logs", h.HandleListLogs)
		r.Get("/logs/{name}", h.HandleDownloadLog)
		r.Post("/send", h.HandleSendOne)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}`))
	})

	return r
}
