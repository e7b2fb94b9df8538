// Package guard suppresses rapid duplicate submissions with a short-lived Redis lock per action.
package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/breakroom/go/internal/gameerr"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const DefaultTTL = 5 * time.Second

// releaseScript deletes the key only if it still holds our token.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`

// Store is the subset of *redis.Client the guard uses.
type Store interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Guard holds one in-flight lock per key.
type Guard struct {
	store  Store
	ttl    time.Duration
	prefix string
}

func New(store Store, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{
		store:  store,
		ttl:    ttl,
		prefix: "breakroom:inflight:",
	}
}

// Connect opens a Redis client from a redis:// URL and pings it.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Key builds the lock key for one actor's action on one session.
func Key(action string, sessionID, userID uuid.UUID) string {
	return action + ":" + sessionID.String() + ":" + userID.String()
}

// Acquire takes the lock for key. A held lock returns gameerr.ErrInFlight.
// When Redis is unreachable the guard fails open; the database remains the arbiter of duplicates.
func (g *Guard) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	fullKey := g.prefix + key

	ok, err := g.store.SetNX(ctx, fullKey, token, g.ttl).Result()
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("in-flight guard unavailable, continuing unguarded")
		return func() {}, nil
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", gameerr.ErrInFlight, key)
	}

	return func() {
		// release outlives the request context
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := g.store.Eval(ctx, releaseScript, []string{fullKey}, token).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("failed to release in-flight guard")
		}
	}, nil
}

// Nop never blocks. Used when no Redis is configured.
type Nop struct{}

func (Nop) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}
