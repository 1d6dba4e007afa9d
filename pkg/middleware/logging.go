package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/logger"
)

// HeaderCorrelationID carries the request correlation id in and out.
const HeaderCorrelationID = "X-Correlation-ID"

// CorrelationID propagates the inbound correlation id, generating one when
// absent, and echoes it on the response.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderCorrelationID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderCorrelationID, id)
		next.ServeHTTP(w, r.WithContext(logger.WithCorrelationID(r.Context(), id)))
	})
}

// RequestLogger stores a request-scoped logger (correlation, user, trace and
// span ids) in the context and writes one access line per request. Mount it
// after CorrelationID, Tracing and GatewayIdentity.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx := r.Context()
			scoped := logger.WithContext(ctx, base)

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r.WithContext(logger.NewContext(ctx, scoped)))

			level := slog.LevelInfo
			if rec.status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			scoped.Log(ctx, level, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int("bytes", rec.bytes),
				slog.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}
