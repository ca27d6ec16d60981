package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"conversation-transcriber/internal/app"
	"conversation-transcriber/internal/observability"
	"conversation-transcriber/internal/observability/metrics"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observability.HTTPMetrics(metrics.DefaultMetrics))

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if application.Coordinator == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	h := &handlers{app: application}

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Post("/session/start", h.startSession)
			r.Post("/session/stop", h.stopSession)
			r.Get("/session", h.sessionStatus)
			r.Get("/sessions/{sessionID}/transcripts", h.listTranscripts)
		})

		r.With(middleware.AllowContentType(audioContentTypes...)).
			Post("/session/frames/{speaker}", h.sendFrame)

		r.Get("/transcripts/ws", application.Hub.ServeTranscripts)
		r.Get("/echo/ws", application.Hub.ServeEcho)
	})

	return r
}
