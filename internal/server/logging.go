package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"upkeep/internal/engine"
)

// requestLogger attaches a logger carrying the request id to the request
// context and logs each completed request.
func requestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := uuid.NewString()
			l := base.With(
				slog.String("request_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("X-Request-ID", requestID)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(engine.WithLogger(r.Context(), l)))
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			l.Info("request completed",
				slog.Int("status", status),
				slog.Duration("latency", time.Since(start)),
			)
		})
	}
}
