package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/lexichat/backend/internal/upload"
)

// NewRouter builds the HTTP router with the standard middleware stack.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/health", h.Health)

	r.Post(upload.EndpointInitiate, h.InitiateUpload)
	r.Post(upload.EndpointChunk, h.ReceiveChunk)
	r.Post(upload.EndpointFinalize, h.FinalizeUpload)
	r.Delete(upload.EndpointAbort, h.AbortUpload)

	r.Post("/chat", h.Chat)
	r.Delete("/documents/{id}", h.DeleteDocument)

	return r
}

// requestLogger logs one line per request with status and duration.
func requestLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("Handled HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", chimiddleware.GetReqID(r.Context()),
			)
		})
	}
}
