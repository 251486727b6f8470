package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// ValidateAPIKey returns true if providedKey matches configKey.
// If configKey is empty, callers should treat auth as disabled.
func ValidateAPIKey(providedKey string, configKey string) bool {
	if configKey == "" || providedKey == "" {
		return false
	}
	if len(providedKey) != len(configKey) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(providedKey), []byte(configKey)) == 1
}

// ExtractAPIKeys returns the candidate tokens presented by r, in the order
// they are checked: Authorization: Bearer <t>, then X-API-Token: <t>.
// Both are trimmed; empty values are dropped.
func ExtractAPIKeys(r *http.Request) []string {
	var keys []string

	const prefix = "Bearer "
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, prefix) {
		if key := strings.TrimSpace(auth[len(prefix):]); key != "" {
			keys = append(keys, key)
		}
	}
	if key := strings.TrimSpace(r.Header.Get("X-API-Token")); key != "" {
		keys = append(keys, key)
	}
	return keys
}

func (s *Server) authorized(r *http.Request) bool {
	if s.config.Token == "" {
		return true
	}
	for _, key := range ExtractAPIKeys(r) {
		if ValidateAPIKey(key, s.config.Token) {
			return true
		}
	}
	return false
}

// authMiddleware enforces the shared token when one is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			s.logger.Info("unauthorized request", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			respondJSON(w, http.StatusUnauthorized, ErrorResponse{OK: false, Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
