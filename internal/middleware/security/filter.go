// Package security provides security-related HTTP middleware.
package security

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// healthCheckPaths are exempt from security filtering
var healthCheckPaths = map[string]bool{
	"/health":  true,
	"/healthz": true,
	"/readyz":  true,
}

// blockedPathPrefixes are path prefixes that indicate scanner/attack traffic
var blockedPathPrefixes = []string{
	"/.php",
	"/wp-admin",
	"/wp-includes",
	"/wp-content",
	"/wp-login",
	"/.git/",
	"/.env",
	"/cgi-bin/",
	"/phpmyadmin",
	"/phpinfo",
	"/shell",
	"/.htaccess",
	"/.htpasswd",
	"/server-status",
	"/xmlrpc.php",
}

// blockedPathPatterns are patterns that indicate malicious requests
var blockedPathPatterns = []string{
	"../",     // Path traversal
	"..%2f",   // URL-encoded path traversal
	"..%5c",   // URL-encoded backslash traversal
	"%2e%2e/", // Double URL-encoded path traversal
	"%00",     // Null byte injection
}

// FilterMiddleware returns middleware that blocks requests matching known
// scanner probes and path traversal attempts.
func FilterMiddleware(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if healthCheckPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			path := strings.ToLower(r.URL.Path)

			for _, prefix := range blockedPathPrefixes {
				if strings.HasPrefix(path, prefix) {
					writeBlockedResponse(w)
					return
				}
			}

			for _, pattern := range blockedPathPatterns {
				if strings.Contains(path, pattern) {
					writeBlockedResponse(w)
					return
				}
			}

			// Check the raw URL too in case of encoding tricks
			rawPath := r.URL.RawPath
			if rawPath == "" {
				rawPath = r.URL.Path
			}
			decoded, err := url.PathUnescape(rawPath)
			if err == nil && decoded != path {
				decodedLower := strings.ToLower(decoded)
				for _, pattern := range blockedPathPatterns {
					if strings.Contains(decodedLower, pattern) {
						writeBlockedResponse(w)
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeBlockedResponse writes a generic 400 without revealing what triggered the block
func writeBlockedResponse(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    "BAD_REQUEST",
			"message": "Invalid request",
		},
	})
}
