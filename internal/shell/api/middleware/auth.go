// Package middleware provides HTTP middleware for the dynroute API.
package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// HeaderToken carries the shared API token when a bearer header is not used.
const HeaderToken = "X-Dynroute-Token"

// =============================================================================
// Auth Configuration
// =============================================================================

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// Token is the shared secret callers must present.
	// If empty, every request is let through.
	Token string

	// Logger for auth middleware logging.
	Logger *slog.Logger
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware rejects requests that do not carry the configured token.
type AuthMiddleware struct {
	config AuthConfig
}

// NewAuthMiddleware creates a new auth middleware with the given config.
func NewAuthMiddleware(cfg AuthConfig) *AuthMiddleware {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &AuthMiddleware{config: cfg}
}

// Handler returns the middleware handler function. The token is read from
// "Authorization: Bearer <token>" or from the X-Dynroute-Token header.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.config.Token == "" {
			next.ServeHTTP(w, r)
			return
		}

		presented := tokenFromRequest(r)
		if presented == "" {
			m.config.Logger.Warn("unauthenticated request",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
				"method", r.Method,
			)
			writeJSONError(w, http.StatusUnauthorized, "Authentication required", "unauthorized")
			return
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(m.config.Token)) != 1 {
			m.config.Logger.Warn("invalid API token",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			writeJSONError(w, http.StatusForbidden, "Invalid API token", "forbidden")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.Header.Get(HeaderToken)
}

// =============================================================================
// JSON Error Response
// =============================================================================

// writeJSONError writes an error body in the API's error format.
func writeJSONError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
		"code":  code,
	})
}
