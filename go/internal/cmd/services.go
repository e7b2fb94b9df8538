package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/breakroom/go/internal/accounts"
	"github.com/mcdev12/breakroom/go/internal/arbiter"
	"github.com/mcdev12/breakroom/go/internal/auth"
	"github.com/mcdev12/breakroom/go/internal/guard"
	"github.com/mcdev12/breakroom/go/internal/janitor"
	"github.com/mcdev12/breakroom/go/internal/outbox"
	"github.com/mcdev12/breakroom/go/internal/participation"
	"github.com/mcdev12/breakroom/go/internal/questions"
	"github.com/mcdev12/breakroom/go/internal/sessions"
	"github.com/mcdev12/breakroom/go/internal/users"
)

type inFlightGuard interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

type Services struct {
	Users         *users.Service
	Accounts      *accounts.Service
	Sessions      *sessions.Service
	Participation *participation.Service
	Arbiter       *arbiter.Service

	Authenticator *auth.Authenticator

	// background work started by main
	arbiterApp *arbiter.App
	janitor    *janitor.Janitor
}

func setupServices(database *sql.DB, config *Config, secret string, g inFlightGuard) (*Services, error) {
	// Database layer → Repository layer → App layer → Service layer
	clock := clockwork.NewRealClock()

	// Users
	userRepo := users.NewRepository(database)
	userApp := users.NewApp(userRepo)
	userService := users.NewService(userApp)

	// Accounts
	signer := auth.NewSigner(secret)
	accountsRepo := accounts.NewRepository(database)
	accountsApp := accounts.NewApp(accountsRepo, userApp, signer, clock, accounts.WithAccessTTL(config.Auth.AccessTTL))
	accountsService := accounts.NewService(accountsApp)

	// Sessions
	bank, err := questions.NewBank(config.Questions, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load question bank: %w", err)
	}
	sessionsRepo := sessions.NewRepository(database)
	sessionsApp := sessions.NewApp(sessionsRepo, bank, clock, config.sessionsConfig())
	sessionsService := sessions.NewService(sessionsApp)

	// Participation
	participationRepo := participation.NewRepository(database)
	participationApp := participation.NewApp(participationRepo, g)
	participationService := participation.NewService(participationApp)

	// Arbiter
	arbiterRepo := arbiter.NewRepository(database)
	arbiterApp := arbiter.NewApp(arbiterRepo, clock, nil, g)
	arbiterService := arbiter.NewService(arbiterApp)

	sweeper, err := janitor.New(sessionsApp, outbox.NewRepository(database), clock, config.Janitor)
	if err != nil {
		return nil, err
	}

	return &Services{
		Users:         userService,
		Accounts:      accountsService,
		Sessions:      sessionsService,
		Participation: participationService,
		Arbiter:       arbiterService,
		Authenticator: auth.NewAuthenticator(signer, userApp),
		arbiterApp:    arbiterApp,
		janitor:       sweeper,
	}, nil
}

// setupGuard uses Redis when REDIS_URL is set and a no-op guard otherwise.
func setupGuard(ctx context.Context, config *Config) (inFlightGuard, func(), error) {
	url := getEnv("REDIS_URL", "")
	if url == "" {
		log.Info().Msg("REDIS_URL not set, duplicate submission guard disabled")
		return guard.Nop{}, func() {}, nil
	}
	client, err := guard.Connect(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	return guard.New(client, config.Guard.TTL), func() { client.Close() }, nil
}
