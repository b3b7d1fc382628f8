package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Middleware returns HTTP middleware for request metrics.
func Middleware(next http.Handler) http.Handler {
	if !enabled {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			duration := time.Since(start).Seconds()

			// Normalize path to avoid high cardinality from IDs
			path := normalizePath(r.URL.Path)

			httpRequestsTotal.WithLabelValues(
				r.Method,
				path,
				strconv.Itoa(rw.status),
			).Inc()

			httpDuration.WithLabelValues(
				r.Method,
				path,
			).Observe(duration)
		}()

		next.ServeHTTP(rw, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures status code.
func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

// normalizePath collapses dynamic path segments so metrics stay low
// cardinality. Contract addresses never appear in paths (they travel as
// query parameters), so only obviously dynamic API segments are replaced.
func normalizePath(path string) string {
	if path == "/" || path == "/analyze" || path == "/metrics" {
		return path
	}
	if path == "/health" || path == "/healthz" || path == "/readyz" {
		return path
	}

	if strings.HasPrefix(path, "/api/v1/") {
		parts := strings.Split(path[8:], "/")
		normalized := []string{"/api/v1"}
		for _, part := range parts {
			if part == "" {
				continue
			}
			if isLikelyID(part) {
				normalized = append(normalized, "{id}")
			} else {
				normalized = append(normalized, part)
			}
		}
		return strings.Join(normalized, "/")
	}
	return path
}

// isLikelyID returns true if segment looks like an identifier.
func isLikelyID(segment string) bool {
	if strings.HasPrefix(segment, "0x") && isHex(segment[2:]) {
		return true
	}
	if strings.Count(segment, "-") >= 4 {
		return true // UUID
	}
	return isNumeric(segment)
}

func isHex(s string) bool {
	for _, c := range s {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return false
		}
	}
	return len(s) > 0
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
