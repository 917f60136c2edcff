package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// CORS allows the given origins; an empty list allows any origin without credentials.
// Upload metadata travels in request headers, so those are allowed too. Custom
// X-Goog-Meta-* headers are not: go-chi/cors matches header names exactly.
func CORS(allowedOrigins []string, log logrus.FieldLogger) func(http.Handler) http.Handler {
	credentials := len(allowedOrigins) > 0
	if !credentials {
		allowedOrigins = []string{"*"}
	}
	log.WithFields(logrus.Fields{"origins": allowedOrigins, "credentials": credentials}).Info("CORS configured")

	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type", "Content-MD5", "Cache-Control",
			"Content-Disposition", "Content-Language", "X-Requested-With",
		},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: credentials,
		MaxAge:           600,
	})
}
