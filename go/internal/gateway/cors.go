package gateway

import (
	"net/http"

	"github.com/rs/cors"
)

// CORSMiddleware allows browser clients on any origin to read snapshots and open sockets.
func CORSMiddleware(next http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         86400,
	}).Handler(next)
}
