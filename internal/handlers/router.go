package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Sources are the read-only views the status API serves.
type Sources struct {
	Redis     Pinger // nil with the in-process queue
	Narrative NarrativeSource
	Board     BoardSource
	Queue     QueueSource
}

// NewRouter builds the theater's status API.
func NewRouter(src Sources, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/health", NewHealthHandler(src.Redis, src.Narrative, logger))
	r.Route("/v1", func(r chi.Router) {
		r.Method(http.MethodGet, "/narrative", NewNarrativeHandler(src.Narrative, logger))
		r.Method(http.MethodGet, "/board", NewBoardHandler(src.Board, logger))
		r.Method(http.MethodGet, "/queue", NewQueueHandler(src.Queue, logger))
	})

	return r
}

// requestLogger logs each request through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
