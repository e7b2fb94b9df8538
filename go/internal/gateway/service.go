package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Service is the realtime gateway: JetStream change hints in, WebSocket fan-out and
// snapshot reads out.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	eventConsumer     *EventConsumer
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
	}
}

// NewService creates a new gateway service
func NewService(ctx context.Context, config Config, provider StateProvider, authenticator TokenAuthenticator) (*Service, error) {
	cm := NewConnectionManager(config.ConnectionConfig)

	consumer, err := NewEventConsumer(ctx, cm, config.JetStreamConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create event consumer: %w", err)
	}

	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm, authenticator),
		stateHandler:      NewStateHandler(provider, authenticator),
		eventConsumer:     consumer,
	}, nil
}

// Start runs the fan-out and the consumer until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting gateway service")

	go s.connectionManager.Start(ctx)

	err := s.eventConsumer.Start(ctx)
	s.eventConsumer.Stop()
	log.Info().Msg("gateway service stopped")
	return err
}

// RegisterRoutes registers the WebSocket and snapshot routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
}

// Healthy reports whether the gateway can still receive changes
func (s *Service) Healthy() bool {
	return s.eventConsumer.Connected()
}
