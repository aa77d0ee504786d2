package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

const localSiteOrigin = "http://localhost:3000"

// CORS lets the donation site call the API from the browser. Replay and
// rate limit headers are exposed so the checkout page can react to them.
func CORS(publicURL string) func(http.Handler) http.Handler {
	origins := []string{localSiteOrigin}
	if origin := strings.TrimRight(strings.TrimSpace(publicURL), "/"); origin != "" && origin != localSiteOrigin {
		origins = append(origins, origin)
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", IdempotencyKeyHeader, requestIDHeader, "X-Requested-With"},
		ExposedHeaders:   []string{requestIDHeader, IdempotentReplayHeader, "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}).Handler
}
