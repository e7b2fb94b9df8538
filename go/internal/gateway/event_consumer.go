package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/breakroom/go/internal/metrics"
	"github.com/mcdev12/breakroom/go/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// JetStreamConsumerConfig holds configuration for the JetStream consumer
type JetStreamConsumerConfig struct {
	URL           string
	StreamName    string
	ConsumerName  string // unique per gateway instance; every instance sees every change
	SubjectFilter string
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultJetStreamConsumerConfig returns default JetStream consumer configuration
func DefaultJetStreamConsumerConfig() JetStreamConsumerConfig {
	return JetStreamConsumerConfig{
		URL:           nats.DefaultURL,
		StreamName:    "BREAKROOM_CHANGES",
		ConsumerName:  "breakroom-gateway",
		SubjectFilter: "breakroom.changes.>",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// Broadcaster receives decoded change hints.
type Broadcaster interface {
	Broadcast(event models.ChangeEvent)
}

// EventConsumer consumes change hints from JetStream and hands them to the connection manager
type EventConsumer struct {
	broadcaster Broadcaster
	nc          *nats.Conn
	consumer    jetstream.Consumer
	config      JetStreamConsumerConfig
}

// NewEventConsumer connects to NATS and creates or reuses the durable consumer
func NewEventConsumer(ctx context.Context, b Broadcaster, config JetStreamConsumerConfig) (*EventConsumer, error) {
	nc, err := nats.Connect(config.URL,
		nats.Name(config.ConsumerName),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	// Hints are only useful live: a reconnecting subscriber refetches anyway.
	consumer, err := js.CreateOrUpdateConsumer(ctx, config.StreamName, jetstream.ConsumerConfig{
		Name:          config.ConsumerName,
		Durable:       config.ConsumerName,
		Description:   "Breakroom gateway change fan-out",
		FilterSubject: config.SubjectFilter,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    config.MaxDeliver,
		AckWait:       config.AckWait,
		MaxAckPending: config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}

	log.Info().
		Str("consumer", config.ConsumerName).
		Str("stream", config.StreamName).
		Msg("JetStream consumer ready")

	return &EventConsumer{
		broadcaster: b,
		nc:          nc,
		consumer:    consumer,
		config:      config,
	}, nil
}

// Start consumes until ctx is cancelled
func (ec *EventConsumer) Start(ctx context.Context) error {
	messageCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := ec.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event consumer shutting down")
			return nil
		case msg := <-messageCh:
			if err := ec.processMessage(msg.Data()); err != nil {
				// A malformed hint will never decode; terminate it instead of redelivering.
				log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to process message")
				if termErr := msg.Term(); termErr != nil {
					log.Error().Err(termErr).Msg("failed to TERM message")
				}
				continue
			}
			if ackErr := msg.Ack(); ackErr != nil {
				log.Error().Err(ackErr).Msg("failed to ACK message")
			}
		}
	}
}

func (ec *EventConsumer) processMessage(data []byte) error {
	var event models.ChangeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("unmarshal change: %w", err)
	}
	ec.broadcaster.Broadcast(event)
	metrics.RecordBroadcast(event.Table)
	return nil
}

// Connected reports whether the NATS connection is up
func (ec *EventConsumer) Connected() bool {
	return ec.nc.IsConnected()
}

// Stop closes the NATS connection
func (ec *EventConsumer) Stop() {
	if ec.nc != nil {
		ec.nc.Close()
	}
}
