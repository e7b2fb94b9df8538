package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type HealthStatus struct {
	Healthy           bool      `json:"healthy"`
	LastEventTime     time.Time `json:"last_event_time"`
	EventsProcessed   uint64    `json:"events_processed"`
	PendingEvents     int       `json:"pending_events"`
	DatabaseConnected bool      `json:"database_connected"`
	NATSConnected     bool      `json:"nats_connected"`
	ListenerActive    bool      `json:"listener_active"`
	Errors            []string  `json:"errors"`
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Connection is satisfied by *nats.Conn.
type Connection interface {
	IsConnected() bool
}

type HealthChecker struct {
	listener  *Listener
	db        Pinger
	nats      Connection
	store     Store
	threshold time.Duration // How long without events before unhealthy
}

func NewHealthChecker(listener *Listener, db Pinger, nats Connection, store Store, threshold time.Duration) *HealthChecker {
	return &HealthChecker{
		listener:  listener,
		db:        db,
		nats:      nats,
		store:     store,
		threshold: threshold,
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}

	status.EventsProcessed, status.LastEventTime = h.listener.Stats()

	if err := h.db.PingContext(ctx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
	} else {
		status.DatabaseConnected = true
	}

	if h.nats != nil {
		status.NATSConnected = h.nats.IsConnected()
		if !status.NATSConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	status.ListenerActive = h.listener.Running()
	if !status.ListenerActive {
		status.Healthy = false
		status.Errors = append(status.Errors, "listener not active")
	}

	if status.DatabaseConnected {
		pending, err := h.store.CountUnsent(ctx)
		if err != nil {
			status.Errors = append(status.Errors, fmt.Sprintf("failed to count pending events: %v", err))
		} else {
			status.PendingEvents = pending
			if pending > 1000 {
				status.Errors = append(status.Errors, fmt.Sprintf("high pending event count: %d", pending))
			}
		}
	}

	// stalled: rows waiting and nothing relayed recently
	if status.PendingEvents > 0 && !status.LastEventTime.IsZero() {
		if since := time.Since(status.LastEventTime); since > h.threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("no events processed for %s", since))
		}
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}
