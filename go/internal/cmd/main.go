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
	"golang.org/x/sync/errgroup"
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

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal().Msg("JWT_SECRET is required")
	}

	config, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := setupDatabase(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	g, closeGuard, err := setupGuard(ctx, config)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer closeGuard()

	services, err := setupServices(database, config, secret, g)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}
	server := setupServer(services)

	workers := getEnvAsInt("ARBITER_WORKERS", config.Arbiter.Workers)
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return services.arbiterApp.Run(gctx, workers) })
	group.Go(func() error { return services.janitor.Run(gctx) })
	group.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error().Err(err).Msg("server exited with error")
	}
	log.Info().Msg("shutdown complete")
}
