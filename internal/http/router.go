package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ai-voice-transcription-service/internal/app"
	"ai-voice-transcription-service/internal/observability"
	"ai-voice-transcription-service/internal/observability/metrics"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	return Routes(NewHandler(application.Voice), application.Metrics)
}

// Routes mounts h on a chi router.
func Routes(h *Handler, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observability.HTTPMetrics(m))

	// Health endpoints
	r.Get("/v1/liveness", h.liveness)
	r.Get("/v1/readiness", h.readiness)

	// API routes
	r.Route("/v1/voice", func(r chi.Router) {
		r.Get("/ping", h.ping)
		r.Route("/asr", func(r chi.Router) {
			r.Get("/upload_url", h.uploadURL)
			r.Post("/submit_by_key", h.submitByKey)
			r.Post("/submit", h.submitDirect)
		})
	})

	return r
}
