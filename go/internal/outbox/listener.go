package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

type ListenerConfig struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // Channel name to LISTEN on
	FallbackInterval time.Duration // How often to poll for missed events
	MaxRetries       int
	RetryDelay       time.Duration
	PingInterval     time.Duration
	BatchSize        int // Max events to fetch per batch
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		DatabaseURL:      "",
		NotifyChannel:    "breakroom_changes",
		FallbackInterval: 30 * time.Second,
		MaxRetries:       5,
		RetryDelay:       200 * time.Millisecond,
		PingInterval:     90 * time.Second,
		BatchSize:        100,
	}
}

// Publisher is an interface that defines our publisher.
type Publisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}

// Store is what the listener needs from the outbox table.
type Store interface {
	FetchOutboxByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error)
	FetchUnsentOutbox(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkOutboxSent(ctx context.Context, id uuid.UUID) error
	CountUnsent(ctx context.Context) (int, error)
}

// Listener relays change_outbox rows to the bus. NOTIFY gives low latency;
// the fallback sweep picks up anything missed while disconnected.
type Listener struct {
	store     Store
	listener  *pq.Listener
	publisher Publisher
	metrics   MetricsCollector
	cfg       ListenerConfig

	mu        sync.Mutex
	running   bool
	processed uint64
	lastEvent time.Time
}

func NewListener(store Store, publisher Publisher, metrics MetricsCollector, cfg ListenerConfig) (*Listener, error) {
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for notifications")

	return &Listener{
		store:     store,
		listener:  l,
		publisher: publisher,
		metrics:   metrics,
		cfg:       cfg,
	}, nil
}

func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("listener started")

	l.setRunning(true)
	defer l.setRunning(false)

	pingTicker := time.NewTicker(l.cfg.PingInterval)
	fallbackTicker := time.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	// catch up on anything written while we were down
	if err := l.processUnsent(ctx); err != nil {
		log.Error().Err(err).Msg("failed to process unsent events")
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener shutting down")
			return l.Stop()
		case note := <-l.listener.Notify:
			if note == nil {
				// connection was re-established; notifications may have been lost
				if err := l.processUnsent(ctx); err != nil {
					log.Error().Err(err).Msg("failed to process unsent events after reconnect")
				}
				continue
			}
			if err := l.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle notification")
			}
		case <-fallbackTicker.C:
			if err := l.processUnsent(ctx); err != nil {
				log.Error().Err(err).Msg("failed to process unsent events")
			}
		case <-pingTicker.C:
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (l *Listener) Stop() error {
	if l.listener == nil {
		return nil
	}
	return l.listener.Close()
}

// Stats returns how many events were relayed and when the last one went out.
func (l *Listener) Stats() (uint64, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.processed, l.lastEvent
}

// Running reports whether Start is executing.
func (l *Listener) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Listener) setRunning(v bool) {
	l.mu.Lock()
	l.running = v
	l.mu.Unlock()
}

// handleNotification handles a pg listen notification. Extra is the outbox row id.
func (l *Listener) handleNotification(ctx context.Context, extra string) error {
	id, err := uuid.Parse(extra)
	if err != nil {
		return fmt.Errorf("invalid event ID in notification: %w", err)
	}

	event, err := l.store.FetchOutboxByID(ctx, id)
	if err != nil {
		// already relayed by the fallback sweep
		log.Debug().Err(err).Str("event_id", id.String()).Msg("skipping notification")
		return nil
	}

	if err := l.publishWithRetry(ctx, *event); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// processUnsent relays every unsent row in one batch.
func (l *Listener) processUnsent(ctx context.Context) error {
	start := time.Now()

	if lag, err := l.store.CountUnsent(ctx); err == nil {
		l.metrics.RecordOutboxLag(lag)
	}

	unsent, err := l.store.FetchUnsentOutbox(ctx, l.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}

	for _, event := range unsent {
		if err := l.publishWithRetry(ctx, event); err != nil {
			log.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to publish event")
			continue
		}
	}

	l.metrics.RecordBatchProcessed(len(unsent), time.Since(start))
	return nil
}

// publishWithRetry publishes with linear backoff and marks the row sent on success.
func (l *Listener) publishWithRetry(ctx context.Context, event OutboxEvent) error {
	var lastErr error

	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := l.cfg.RetryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := l.publisher.Publish(ctx, event); err != nil {
			lastErr = err
			l.metrics.RecordPublishAttempt(event.EventType(), attempt+1, false)
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("failed to publish, retrying")
			continue
		}
		l.metrics.RecordPublishAttempt(event.EventType(), attempt+1, true)

		if err := l.store.MarkOutboxSent(ctx, event.ID); err != nil {
			log.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to mark outbox event as sent")
			return err
		}

		l.mu.Lock()
		l.processed++
		l.lastEvent = time.Now()
		l.mu.Unlock()

		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("publish succeeded after retry")
		}
		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", l.cfg.MaxRetries+1, lastErr)
}
