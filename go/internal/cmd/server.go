package main

import (
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	apiv1 "github.com/mcdev12/breakroom/go/internal/api/v1"
	"github.com/mcdev12/breakroom/go/internal/metrics"
	"github.com/mcdev12/breakroom/go/internal/rpc"
)

func setupServer(services *Services) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	registerServices(mux, services)
	setupHealthCheck(mux)
	mux.Handle("GET /metrics", metrics.Handler())

	handler := c.Handler(mux)

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", getEnv("PORT", "8080")),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func registerServices(mux *http.ServeMux, services *Services) {
	interceptors := rpc.ServerInterceptors(services.Authenticator, apiv1.PublicProcedures...)

	services.Accounts.RegisterHandlers(mux, interceptors)
	services.Users.RegisterHandlers(mux, interceptors)
	services.Sessions.RegisterHandlers(mux, interceptors)
	services.Participation.RegisterHandlers(mux, interceptors)
	services.Arbiter.RegisterHandlers(mux, interceptors)
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
