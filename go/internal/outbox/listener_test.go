package outbox

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/mcdev12/breakroom/go/internal/models"
)

type fakeStore struct {
	mu     sync.Mutex
	events map[uuid.UUID]OutboxEvent
	order  []uuid.UUID
	sent   map[uuid.UUID]bool
}

func newFakeStore(events ...OutboxEvent) *fakeStore {
	s := &fakeStore{events: map[uuid.UUID]OutboxEvent{}, sent: map[uuid.UUID]bool{}}
	for _, ev := range events {
		s.events[ev.ID] = ev
		s.order = append(s.order, ev.ID)
	}
	return s
}

func (s *fakeStore) FetchOutboxByID(_ context.Context, id uuid.UUID) (*OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok || s.sent[id] {
		return nil, errors.New("outbox event not found or already sent")
	}
	return &ev, nil
}

func (s *fakeStore) FetchUnsentOutbox(_ context.Context, limit int) ([]OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []OutboxEvent
	for _, id := range s.order {
		if !s.sent[id] && len(out) < limit {
			out = append(out, s.events[id])
		}
	}
	return out, nil
}

func (s *fakeStore) MarkOutboxSent(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[id] = true
	return nil
}

func (s *fakeStore) CountUnsent(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order) - len(s.sent), nil
}

type fakePublisher struct {
	mu        sync.Mutex
	failFirst int
	calls     int
	published []OutboxEvent
}

func (p *fakePublisher) Publish(_ context.Context, event OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failFirst {
		return errors.New("nats: timeout")
	}
	p.published = append(p.published, event)
	return nil
}

type countingMetrics struct {
	NoOpMetricsCollector
	attempts []bool
	lag      int
}

func (m *countingMetrics) RecordPublishAttempt(_ string, _ int, success bool) {
	m.attempts = append(m.attempts, success)
}

func (m *countingMetrics) RecordOutboxLag(lag int) { m.lag = lag }

func newEvent(table string, op models.ChangeOp) OutboxEvent {
	return OutboxEvent{ID: uuid.New(), Table: table, Op: op, SessionID: uuid.New(), RecordID: uuid.New(), CreatedAt: time.Now()}
}

func newTestListener(store Store, pub Publisher, m MetricsCollector) *Listener {
	cfg := DefaultListenerConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.MaxRetries = 2
	return &Listener{store: store, publisher: pub, metrics: m, cfg: cfg}
}

func TestHandleNotificationPublishesAndMarksSent(t *testing.T) {
	ev := newEvent(models.TableSessions, models.ChangeOpUpdate)
	store := newFakeStore(ev)
	pub := &fakePublisher{}
	l := newTestListener(store, pub, &NoOpMetricsCollector{})

	if err := l.handleNotification(context.Background(), ev.ID.String()); err != nil {
		t.Fatalf("handleNotification: %v", err)
	}
	if len(pub.published) != 1 || pub.published[0].ID != ev.ID {
		t.Fatalf("published = %v, want [%v]", pub.published, ev.ID)
	}
	if !store.sent[ev.ID] {
		t.Error("event not marked sent")
	}

	// a late duplicate notification is a no-op
	if err := l.handleNotification(context.Background(), ev.ID.String()); err != nil {
		t.Fatalf("duplicate notification: %v", err)
	}
	if len(pub.published) != 1 {
		t.Errorf("published %d times, want 1", len(pub.published))
	}
	if processed, _ := l.Stats(); processed != 1 {
		t.Errorf("processed = %d, want 1", processed)
	}
}

func TestHandleNotificationRejectsBadID(t *testing.T) {
	l := newTestListener(newFakeStore(), &fakePublisher{}, &NoOpMetricsCollector{})
	if err := l.handleNotification(context.Background(), "not-a-uuid"); err == nil {
		t.Error("expected error for malformed id")
	}
}

func TestPublishWithRetry(t *testing.T) {
	ev := newEvent(models.TableParticipations, models.ChangeOpInsert)
	store := newFakeStore(ev)
	pub := &fakePublisher{failFirst: 2}
	m := &countingMetrics{}
	l := newTestListener(store, pub, m)

	if err := l.publishWithRetry(context.Background(), ev); err != nil {
		t.Fatalf("publishWithRetry: %v", err)
	}
	if diff := cmp.Diff([]bool{false, false, true}, m.attempts); diff != "" {
		t.Errorf("attempts mismatch (-want +got):\n%s", diff)
	}

	pub = &fakePublisher{failFirst: 10}
	l = newTestListener(newFakeStore(ev), pub, &NoOpMetricsCollector{})
	if err := l.publishWithRetry(context.Background(), ev); err == nil {
		t.Error("expected error after exhausting retries")
	}
	if pub.calls != 3 {
		t.Errorf("calls = %d, want 3", pub.calls)
	}
}

func TestProcessUnsent(t *testing.T) {
	a := newEvent(models.TableSessions, models.ChangeOpInsert)
	b := newEvent(models.TableParticipations, models.ChangeOpUpdate)
	store := newFakeStore(a, b)
	pub := &fakePublisher{}
	m := &countingMetrics{}
	l := newTestListener(store, pub, m)

	if err := l.processUnsent(context.Background()); err != nil {
		t.Fatalf("processUnsent: %v", err)
	}
	if m.lag != 2 {
		t.Errorf("lag = %d, want 2", m.lag)
	}
	if len(pub.published) != 2 || pub.published[0].ID != a.ID || pub.published[1].ID != b.ID {
		t.Errorf("published out of order: %v", pub.published)
	}
	if n, _ := store.CountUnsent(context.Background()); n != 0 {
		t.Errorf("unsent = %d, want 0", n)
	}
}

func TestSubject(t *testing.T) {
	ev := newEvent(models.TableSessions, models.ChangeOpDelete)
	if got := Subject("breakroom.changes", ev); got != "breakroom.changes.sessions.delete" {
		t.Errorf("Subject() = %q", got)
	}
}

type okPinger struct{ err error }

func (p okPinger) PingContext(context.Context) error { return p.err }

type natsStub bool

func (n natsStub) IsConnected() bool { return bool(n) }

func TestHealthChecker(t *testing.T) {
	l := newTestListener(newFakeStore(), &fakePublisher{}, &NoOpMetricsCollector{})
	l.setRunning(true)

	h := NewHealthChecker(l, okPinger{}, natsStub(true), newFakeStore(), time.Minute)
	if status := h.Check(context.Background()); !status.Healthy {
		t.Errorf("expected healthy, got errors %v", status.Errors)
	}

	h = NewHealthChecker(l, okPinger{err: errors.New("down")}, natsStub(false), newFakeStore(), time.Minute)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != 503 {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
