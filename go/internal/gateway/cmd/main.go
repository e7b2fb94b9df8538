package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/breakroom/go/internal/auth"
	"github.com/mcdev12/breakroom/go/internal/dbconfig"
	"github.com/mcdev12/breakroom/go/internal/gateway"
	"github.com/mcdev12/breakroom/go/internal/metrics"
	"github.com/mcdev12/breakroom/go/internal/users"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	port := getEnv("GATEWAY_PORT", "8081")
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbCfg := dbconfig.NewConfigFromEnv()
	db, err := dbconfig.Open(ctx, dbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	authenticator := auth.NewAuthenticator(auth.NewSigner(secret), users.NewApp(users.NewRepository(db)))

	config := gateway.DefaultConfig()
	config.JetStreamConfig.URL = getEnv("NATS_URL", config.JetStreamConfig.URL)
	hostname, _ := os.Hostname()
	config.JetStreamConfig.ConsumerName = getEnv("GATEWAY_CONSUMER", fmt.Sprintf("breakroom-gateway-%s", hostname))

	gatewayService, err := gateway.NewService(ctx, config, gateway.NewDBStateProvider(db), authenticator)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gateway service")
	}

	log.Info().
		Str("database", dbCfg.Database).
		Str("nats_url", config.JetStreamConfig.URL).
		Str("consumer", config.JetStreamConfig.ConsumerName).
		Str("port", port).
		Msg("starting gateway")

	mux := http.NewServeMux()
	gatewayService.RegisterRoutes(mux)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if !gatewayService.Healthy() {
			http.Error(w, "NATS disconnected", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           gateway.CORSMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := gatewayService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	<-done

	log.Info().Msg("gateway shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
