package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/breakroom/go/internal/dbconfig"
	"github.com/mcdev12/breakroom/go/internal/metrics"
	"github.com/mcdev12/breakroom/go/internal/outbox"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := dbconfig.NewConfigFromEnv()
	db, err := dbconfig.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()
	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("connected to database")

	jsCfg := outbox.DefaultJetStreamConfig()
	if url := os.Getenv("NATS_URL"); url != "" {
		jsCfg.URL = url
	}
	publisher, err := outbox.NewJetStreamPublisher(jsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create JetStream publisher")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("close publisher")
		}
	}()

	ltCfg := outbox.DefaultListenerConfig()
	ltCfg.DatabaseURL = cfg.DSN()
	if iv := os.Getenv("FALLBACK_INTERVAL"); iv != "" {
		if d, err := time.ParseDuration(iv); err == nil {
			ltCfg.FallbackInterval = d
		}
	}

	store := outbox.NewRepository(db)
	collector := metrics.Outbox{}
	listener, err := outbox.NewListener(store, outbox.NewMetricPublisher(publisher, collector), collector, ltCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create outbox listener")
	}

	health := outbox.NewHealthChecker(listener, db, publisher.Conn(), store, 5*time.Minute)
	mux := http.NewServeMux()
	mux.Handle("/health", health)
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{
		Addr:              ":" + getEnv("OUTBOX_HTTP_PORT", "8082"),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server failed")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msg("starting outbox relay")
		errCh <- listener.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("listener exited unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := listener.Stop(); err != nil {
		log.Error().Err(err).Msg("stop listener")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server shutdown")
	}
	log.Info().Msg("graceful shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
