package breakroom

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/mcdev12/breakroom/go/internal/gameerr"
	"github.com/mcdev12/breakroom/go/internal/models"
)

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// Feed opens change subscriptions against the realtime gateway.
type Feed struct {
	baseURL string
	tokens  TokenSource
	dialer  *websocket.Dialer
	logger  zerolog.Logger
	clock   clockwork.Clock
}

type FeedOption func(*Feed)

// WithFeedClock sets the clock the reconnect backoff waits on.
func WithFeedClock(c clockwork.Clock) FeedOption {
	return func(f *Feed) { f.clock = c }
}

// NewFeed creates a feed for the gateway at baseURL (http, https, ws or wss).
func NewFeed(baseURL string, tokens TokenSource, logger zerolog.Logger, opts ...FeedOption) *Feed {
	f := &Feed{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		dialer:  websocket.DefaultDialer,
		logger:  logger,
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Subscription is one live change stream. Cancel it to release the socket.
type Subscription struct {
	scope  string
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	conn *websocket.Conn
}

// Subscribe streams change hints for scope (a session id or models.ScopeAll) to onChange
// until the subscription is cancelled or ctx ends. The first connection is made before
// Subscribe returns. If the socket drops, the feed reconnects with backoff and then calls
// onChange with an empty event, since changes may have been missed in between.
//
// Events are at-least-once and unordered. onChange is called from a single goroutine.
func (f *Feed) Subscribe(ctx context.Context, scope string, onChange func(models.ChangeEvent)) (*Subscription, error) {
	endpoint, err := f.endpoint(scope)
	if err != nil {
		return nil, err
	}
	conn, err := f.dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{scope: scope, cancel: cancel, done: make(chan struct{}), conn: conn}
	go func() {
		<-ctx.Done()
		sub.closeConn()
	}()
	go f.run(ctx, sub, endpoint, onChange)
	return sub, nil
}

// Cancel stops the subscription and waits for its goroutine to exit. Safe to call twice.
func (s *Subscription) Cancel() {
	s.cancel()
	<-s.done
}

// Scope returns the subscribed scope.
func (s *Subscription) Scope() string {
	return s.scope
}

func (s *Subscription) closeConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
	}
}

func (s *Subscription) swap(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
}

func (f *Feed) run(ctx context.Context, sub *Subscription, endpoint string, onChange func(models.ChangeEvent)) {
	defer close(sub.done)

	backoff := minBackoff
	conn := sub.conn
	for {
		f.read(ctx, conn, onChange)
		if ctx.Err() != nil {
			return
		}

		for {
			f.logger.Warn().Str("scope", sub.scope).Dur("retry_in", backoff).Msg("change feed disconnected")
			select {
			case <-ctx.Done():
				return
			case <-f.clock.After(backoff):
			}
			next, err := f.dial(ctx, endpoint)
			if err == nil {
				conn = next
				break
			}
			backoff = min(backoff*2, maxBackoff)
		}
		backoff = minBackoff
		sub.swap(conn)
		if ctx.Err() != nil {
			conn.Close()
			return
		}
		onChange(models.ChangeEvent{})
	}
}

func (f *Feed) read(ctx context.Context, conn *websocket.Conn, onChange func(models.ChangeEvent)) {
	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				f.logger.Debug().Err(err).Msg("change feed read failed")
			}
			return
		}
		var event models.ChangeEvent
		if err := json.Unmarshal(data, &event); err != nil {
			f.logger.Warn().Err(err).Msg("dropping undecodable change")
			continue
		}
		onChange(event)
	}
}

func (f *Feed) dial(ctx context.Context, endpoint string) (*websocket.Conn, error) {
	u := endpoint
	if f.tokens != nil {
		if token := f.tokens.Token(); token != "" {
			u += "&token=" + url.QueryEscape(token)
		}
	}
	conn, resp, err := f.dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: change feed rejected the token", gameerr.ErrUnauthenticated)
		}
		return nil, fmt.Errorf("%w: failed to subscribe: %v", gameerr.ErrRemoteUnavailable, err)
	}
	return conn, nil
}

func (f *Feed) endpoint(scope string) (string, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid gateway url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path += "/ws/changes"
	u.RawQuery = url.Values{"scope": {scope}}.Encode()
	return u.String(), nil
}
