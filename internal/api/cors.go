package api

import (
	"net/http"

	"github.com/rs/cors"
)

// corsMaxAgeSeconds is how long browsers may cache a preflight.
const corsMaxAgeSeconds = 600

// corsMiddleware applies the origin allow-list. Every response carries
// Vary: Origin; preflights answer 204 and echo the requested headers.
func (s *Server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins:      s.config.AllowedOrigins,
		AllowedMethods:      []string{http.MethodPost, http.MethodGet, http.MethodOptions},
		AllowedHeaders:      []string{"*"},
		MaxAge:              corsMaxAgeSeconds,
		AllowPrivateNetwork: true,
	}
	// An empty list means no cross-origin access; cors.Options reads it as "*".
	if len(s.config.AllowedOrigins) == 0 {
		opts.AllowOriginFunc = func(string) bool { return false }
	}
	return cors.New(opts).Handler
}

// optionsNoContent answers any OPTIONS request that was not a CORS preflight.
func optionsNoContent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
