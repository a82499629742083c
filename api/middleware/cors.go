package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/angelmondragon/carrental-backend/pkg/config"
)

// CORS allows browsers from cfg.AllowedOrigins and lets them read the
// headers our own middleware sets.
func CORS(cfg config.CORSConfig) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdempotencyHeader, requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader, ReplayedHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
