package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Message headers set on every change hint.
const (
	HeaderTable     = "Breakroom-Table"
	HeaderOp        = "Breakroom-Op"
	HeaderSessionID = "Breakroom-Session-ID"
)

type JetStreamConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration

	// Retention for change hints.
	MaxAge          time.Duration
	Replicas        int
	DuplicateWindow time.Duration
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "BREAKROOM_CHANGES",
		SubjectPrefix:   "breakroom.changes",
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		MaxAge:          time.Hour,
		Replicas:        1,
		DuplicateWindow: 2 * time.Minute,
	}
}

func (c JetStreamConfig) streamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        c.StreamName,
		Description: "Session and participation change hints",
		Subjects:    []string{c.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		Discard:     jetstream.DiscardOld,
		MaxAge:      c.MaxAge,
		Storage:     jetstream.FileStorage,
		Replicas:    c.Replicas,
		Duplicates:  c.DuplicateWindow,
	}
}

// Subject returns the subject a change is published on: <prefix>.<table>.<op>.
func Subject(prefix string, event OutboxEvent) string {
	return prefix + "." + event.EventType()
}

// JetStreamPublisher relays outbox rows to the change stream.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

// NewJetStreamPublisher connects and makes sure the stream exists with the configured limits.
func NewJetStreamPublisher(cfg JetStreamConfig) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("breakroom-outbox"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("outbox lost its NATS connection")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("outbox reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stream, err := js.CreateOrUpdateStream(ctx, cfg.streamConfig())
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to provision stream %s: %w", cfg.StreamName, err)
	}
	log.Info().
		Str("stream", stream.CachedInfo().Config.Name).
		Dur("max_age", cfg.MaxAge).
		Msg("change stream ready")

	return &JetStreamPublisher{nc: nc, js: js, config: cfg}, nil
}

// Conn exposes the NATS connection for health checks.
func (p *JetStreamPublisher) Conn() *nats.Conn {
	return p.nc
}

// Publish sends the change hint. The outbox id doubles as the JetStream message id,
// so a row re-published after a crash is dropped by the duplicate window.
func (p *JetStreamPublisher) Publish(ctx context.Context, event OutboxEvent) error {
	data, err := json.Marshal(event.Change())
	if err != nil {
		return fmt.Errorf("failed to encode change %s: %w", event.ID, err)
	}

	msg := nats.NewMsg(Subject(p.config.SubjectPrefix, event))
	msg.Data = data
	msg.Header.Set(HeaderTable, event.Table)
	msg.Header.Set(HeaderOp, string(event.Op))
	msg.Header.Set(HeaderSessionID, event.SessionID.String())

	ack, err := p.js.PublishMsg(ctx, msg,
		jetstream.WithMsgID(event.ID.String()),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("failed to publish change %s: %w", event.ID, err)
	}
	if ack.Duplicate {
		log.Debug().Str("event_id", event.ID.String()).Msg("change already on the stream")
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (p *JetStreamPublisher) Close() error {
	return p.nc.Drain()
}
