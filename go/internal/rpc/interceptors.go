package rpc

import (
	"context"
	"errors"
	"time"

	"connectrpc.com/connect"
	"github.com/mcdev12/breakroom/go/internal/auth"
	"github.com/mcdev12/breakroom/go/internal/gameerr"
	"github.com/mcdev12/breakroom/go/internal/metrics"
	"github.com/mcdev12/breakroom/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Authenticator resolves the Authorization header to an actor.
type Authenticator interface {
	Authenticate(ctx context.Context, header string) (*models.Actor, error)
}

// NewAuthInterceptor rejects unauthenticated calls and puts the actor on the context.
// Procedures listed in public are passed through without a token.
func NewAuthInterceptor(a Authenticator, public ...string) connect.UnaryInterceptorFunc {
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if req.Spec().IsClient || open[req.Spec().Procedure] {
				return next(ctx, req)
			}
			actor, err := a.Authenticate(ctx, req.Header().Get("Authorization"))
			if err != nil {
				return nil, gameerr.ToConnect(err)
			}
			return next(auth.WithActor(ctx, actor), req)
		}
	}
}

// NewLoggingInterceptor logs every call with its duration and outcome.
func NewLoggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			res, err := next(ctx, req)

			event := log.Debug()
			if err != nil {
				code := connect.CodeOf(err)
				if code == connect.CodeUnknown || code == connect.CodeInternal || code == connect.CodeUnavailable {
					event = log.Error()
				} else {
					event = log.Info()
				}
				event = event.Err(err).Str("code", code.String())
			}
			event.
				Str("procedure", req.Spec().Procedure).
				Str("peer", req.Peer().Addr).
				Dur("duration", time.Since(start)).
				Msg("rpc")
			return res, err
		}
	}
}

// NewMetricsInterceptor records request counts, latency and in-flight requests.
func NewMetricsInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			done := metrics.RPCStarted(req.Spec().Procedure)
			res, err := next(ctx, req)
			done(codeLabel(err))
			return res, err
		}
	}
}

func codeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce.Code().String()
	}
	return connect.CodeUnknown.String()
}

// ServerInterceptors is the standard chain: metrics outermost so rejected calls are counted.
func ServerInterceptors(a Authenticator, public ...string) connect.HandlerOption {
	return connect.WithInterceptors(
		NewMetricsInterceptor(),
		NewLoggingInterceptor(),
		NewAuthInterceptor(a, public...),
	)
}
