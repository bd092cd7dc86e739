// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"
)

// logFields is a mutable record shared between the logging middleware and
// downstream handlers. Logging installs a pointer before calling the handler,
// and Set calls write through it, so values set in contexts derived inside
// the handler are visible when the middleware writes the log line. Plain
// context.WithValue would not work here: derived contexts never propagate
// back up to the middleware's request.
type logFields struct {
	mu          sync.Mutex
	actorUserID string
	errorCode   string
}

// logFieldsKey is the context key for the shared log fields record.
type logFieldsKey struct{}

func withLogFields(ctx context.Context) context.Context {
	return context.WithValue(ctx, logFieldsKey{}, &logFields{})
}

func logFieldsFrom(ctx context.Context) *logFields {
	fields, _ := ctx.Value(logFieldsKey{}).(*logFields)
	return fields
}

// SetActorUserID stores the authenticated actor's user id for the logging
// middleware. Called by the auth middleware after resolving an identity.
func SetActorUserID(ctx context.Context, userID string) context.Context {
	fields := logFieldsFrom(ctx)
	if fields == nil {
		ctx = withLogFields(ctx)
		fields = logFieldsFrom(ctx)
	}
	fields.mu.Lock()
	fields.actorUserID = userID
	fields.mu.Unlock()
	return ctx
}

// GetActorUserID retrieves the actor's user id. Returns empty string if not
// present.
func GetActorUserID(ctx context.Context) string {
	fields := logFieldsFrom(ctx)
	if fields == nil {
		return ""
	}
	fields.mu.Lock()
	defer fields.mu.Unlock()
	return fields.actorUserID
}

// SetErrorCode stores an error code for the logging middleware.
// Called by handlers when returning error responses.
func SetErrorCode(ctx context.Context, code string) context.Context {
	fields := logFieldsFrom(ctx)
	if fields == nil {
		ctx = withLogFields(ctx)
		fields = logFieldsFrom(ctx)
	}
	fields.mu.Lock()
	fields.errorCode = code
	fields.mu.Unlock()
	return ctx
}

// GetErrorCode retrieves the error code. Returns empty string if not present.
func GetErrorCode(ctx context.Context) string {
	fields := logFieldsFrom(ctx)
	if fields == nil {
		return ""
	}
	fields.mu.Lock()
	defer fields.mu.Unlock()
	return fields.errorCode
}

// responseWriter wraps http.ResponseWriter to capture status code and response size.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int
	wroteHeader bool
}

// WriteHeader captures the status code before writing it.
// Only the first call sets the status code; subsequent calls are ignored
// to match http.ResponseWriter behavior where only the first status is sent.
func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size and writes the data.
func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// newResponseWriter creates a new responseWriter with default 200 status.
func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// NewLogger creates an slog.Logger based on the environment.
// In production (env == "production"), it returns a JSON handler.
// Otherwise, it returns a text handler for development.
func NewLogger(env string) *slog.Logger {
	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}
	return slog.New(handler)
}

// Logging logs HTTP requests with structured fields: method, path, status,
// latency (ms), response size, request id, actor (if authenticated), and
// error_code on 4xx/5xx responses.
//
// Note: if a handler panics the log entry is not written; place a recovery
// middleware outside of the logging middleware.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Shared record for actor and error code set by handlers below.
			if logFieldsFrom(r.Context()) == nil {
				r = r.WithContext(withLogFields(r.Context()))
			}

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			latency := time.Since(start).Milliseconds()

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.statusCode),
				slog.Int64("latency_ms", latency),
				slog.Int("size", rw.size),
			}

			if requestID := GetRequestID(r.Context()); requestID != "" {
				attrs = append(attrs, slog.String("request_id", requestID))
			}
			if actor := GetActorUserID(r.Context()); actor != "" {
				attrs = append(attrs, slog.String("actor_user_id", actor))
			}
			if rw.statusCode >= 400 {
				if errorCode := GetErrorCode(r.Context()); errorCode != "" {
					attrs = append(attrs, slog.String("error_code", errorCode))
				}
			}

			if rw.statusCode >= 500 {
				logger.LogAttrs(r.Context(), slog.LevelError, "request completed", attrs...)
			} else if rw.statusCode >= 400 {
				logger.LogAttrs(r.Context(), slog.LevelWarn, "request completed", attrs...)
			} else {
				logger.LogAttrs(r.Context(), slog.LevelInfo, "request completed", attrs...)
			}
		})
	}
}
