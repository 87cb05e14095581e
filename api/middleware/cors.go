package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/cors"

	"github.com/stadiumcard/stadiumcard-backend/pkg/config"
)

// CORS admits the configured web origins. Idempotency-Key must be allowed
// for browser checkouts, and Retry-After exposed for the copy poller.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	origins := make([]string, 0, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", idempotencyHeader, requestIDHeader},
		ExposedHeaders: []string{requestIDHeader, "Retry-After", replayedHeader},
		// Wildcard origins cannot carry credentials.
		AllowCredentials: !slices.Contains(origins, "*"),
		MaxAge:           int(cfg.MaxAge.Seconds()),
	})
}
