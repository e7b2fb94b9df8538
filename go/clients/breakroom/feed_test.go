package breakroom

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/mcdev12/breakroom/go/internal/gameerr"
	"github.com/mcdev12/breakroom/go/internal/gateway"
	"github.com/mcdev12/breakroom/go/internal/models"
)

type gatewayAuth struct{}

func (gatewayAuth) AuthenticateToken(_ context.Context, token string) (*models.Actor, error) {
	if token != "tok" {
		return nil, gameerr.ErrUnauthenticated
	}
	return &models.Actor{ID: ana, Role: models.RoleUser}, nil
}

func newGateway(t *testing.T) (*gateway.ConnectionManager, *httptest.Server) {
	t.Helper()
	cm := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go cm.Start(ctx)

	mux := http.NewServeMux()
	gateway.NewWebSocketHandler(cm, gatewayAuth{}).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return cm, srv
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFeedDeliversAndCancels(t *testing.T) {
	cm, srv := newGateway(t)
	sessionID := uuid.New()

	got := make(chan models.ChangeEvent, 1)
	feed := NewFeed(srv.URL, staticToken("tok"), zerolog.Nop())
	sub, err := feed.Subscribe(context.Background(), sessionID.String(), func(e models.ChangeEvent) { got <- e })
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "registration", func() bool { return cm.Stats().TotalConnections == 1 })

	change := models.ChangeEvent{ID: uuid.New(), Table: models.TableParticipations, Op: models.ChangeOpInsert, SessionID: sessionID}
	cm.Broadcast(change)
	select {
	case e := <-got:
		if e.ID != change.ID {
			t.Errorf("got change %v, want %v", e.ID, change.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("change never delivered")
	}

	sub.Cancel()
	sub.Cancel()
	waitFor(t, "unregistration", func() bool { return cm.Stats().TotalConnections == 0 })
}

func TestFeedRejectsBadToken(t *testing.T) {
	_, srv := newGateway(t)
	feed := NewFeed(srv.URL, staticToken("nope"), zerolog.Nop())
	_, err := feed.Subscribe(context.Background(), models.ScopeAll, func(models.ChangeEvent) {})
	if !errors.Is(err, gameerr.ErrUnauthenticated) {
		t.Errorf("err = %v, want ErrUnauthenticated", err)
	}
}

// flakyGateway drops its first connection when drop is closed and keeps later ones open.
func flakyGateway(t *testing.T, drop <-chan struct{}) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/changes", func(w http.ResponseWriter, r *http.Request) {
		n := conns.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if n == 1 {
			<-drop
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &conns
}

func TestFeedReconnectsAfterBackoff(t *testing.T) {
	drop := make(chan struct{})
	srv, conns := flakyGateway(t, drop)
	clock := clockwork.NewFakeClock()

	got := make(chan models.ChangeEvent, 1)
	feed := NewFeed(srv.URL, nil, zerolog.Nop(), WithFeedClock(clock))
	sub, err := feed.Subscribe(context.Background(), models.ScopeAll, func(e models.ChangeEvent) { got <- e })
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()

	close(drop)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("feed never started its backoff: %v", err)
	}
	if n := conns.Load(); n != 1 {
		t.Fatalf("redialled before the backoff elapsed: %d connections", n)
	}

	clock.Advance(minBackoff)
	select {
	case e := <-got:
		if e.ID != uuid.Nil {
			t.Errorf("reconnect hint = %+v, want an empty event", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no refresh hint after reconnecting")
	}
	if n := conns.Load(); n != 2 {
		t.Errorf("connections = %d, want 2", n)
	}
}
