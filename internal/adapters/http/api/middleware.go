package api

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"scoutq/pkg/metrics"
)

// MetricsMiddleware wraps HTTP handlers to record Prometheus metrics.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		durationMs := float64(time.Since(start).Milliseconds())
		statusCodeStr := strconv.Itoa(wrapped.statusCode)
		metrics.RecordHTTPRequest(endpoint, r.Method, statusCodeStr)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, statusCodeStr, durationMs)
	}
}

// AuthMiddleware gates webhook endpoints behind a source-IP allow-list
// and/or a static header pair. Empty allowedIPs and header mean open
// access. The first X-Forwarded-For hop is trusted when present, so the
// allow-list keeps working behind a reverse proxy.
func AuthMiddleware(next http.HandlerFunc, allowedIPs []string, header string) http.HandlerFunc {
	name, value := splitHeaderPair(header)
	allowed := make(map[string]struct{}, len(allowedIPs))
	for _, ip := range allowedIPs {
		allowed[strings.TrimSpace(ip)] = struct{}{}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if len(allowed) > 0 {
			if _, ok := allowed[clientIP(r)]; !ok {
				writeError(w, http.StatusForbidden, "forbidden", NewKind("api.auth", ErrUnauthorized))
				return
			}
		}
		if name != "" && r.Header.Get(name) != value {
			writeError(w, http.StatusUnauthorized, "unauthorized", NewKind("api.auth", ErrUnauthorized))
			return
		}
		next.ServeHTTP(w, r)
	}
}

// splitHeaderPair parses a "Header-Name: value" auth pair.
func splitHeaderPair(header string) (string, string) {
	name, value, ok := strings.Cut(header, ":")
	if !ok {
		return "", ""
	}
	return strings.TrimSpace(name), strings.TrimSpace(value)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("failed to write response: %w", err)
	}
	return n, nil
}
