package main

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/breakroom/go/internal/dbconfig"
)

func setupDatabase(ctx context.Context) (*sql.DB, error) {
	cfg := dbconfig.NewConfigFromEnv()
	database, err := dbconfig.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user", cfg.User).
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("connected to database")
	return database, nil
}
