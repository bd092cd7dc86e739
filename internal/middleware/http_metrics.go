// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// normalizePath converts paths with dynamic segments to route patterns to
// prevent cardinality explosion in metrics. Space ids are replaced with a
// {space_id} placeholder since their count is unbounded.
func normalizePath(path string) string {
	staticRoutes := map[string]bool{
		"/":                     true,
		"/health":               true,
		"/ready":                true,
		"/metrics":              true,
		"/v1/auth/whoami":       true,
		"/v1/auth/capabilities": true,
	}

	if staticRoutes[path] {
		return path
	}

	// /v1/spaces/{space_id}/audit/events and /v1/spaces/{space_id}/audit/export
	if strings.HasPrefix(path, "/v1/spaces/") {
		parts := strings.Split(path, "/")
		// ["", "v1", "spaces", "<id>", "audit", "<op>"]
		if len(parts) == 6 && parts[4] == "audit" {
			switch parts[5] {
			case "events", "export":
				return "/v1/spaces/{space_id}/audit/" + parts[5]
			}
		}
		if len(parts) == 4 && parts[3] != "" {
			return "/v1/spaces/{space_id}"
		}
	}

	// Fallback: return as-is so new routes are not accidentally hidden.
	return path
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code and response size.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

// WriteHeader captures the status code before writing it.
func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size and writes the data.
func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// HTTPMetrics records HTTP request metrics: duration, request/response sizes,
// and request counts. Health check endpoints (/health, /ready) are excluded
// to avoid noise.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			mrw := newMetricsResponseWriter(w)

			requestSize := int64(0)
			if contentLength := r.Header.Get("Content-Length"); contentLength != "" {
				if size, err := strconv.ParseInt(contentLength, 10, 64); err == nil {
					requestSize = size
				}
			}

			next.ServeHTTP(mrw, r)

			duration := time.Since(start).Seconds()
			normalizedPath := normalizePath(r.URL.Path)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizedPath,
				strconv.Itoa(mrw.statusCode),
				duration,
				requestSize,
				mrw.size,
			)
		})
	}
}
