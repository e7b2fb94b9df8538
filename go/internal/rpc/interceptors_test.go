package rpc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	apiv1 "github.com/mcdev12/breakroom/go/internal/api/v1"
	"github.com/mcdev12/breakroom/go/internal/auth"
	"github.com/mcdev12/breakroom/go/internal/gameerr"
	"github.com/mcdev12/breakroom/go/internal/models"
)

type fakeAuthenticator struct {
	actor *models.Actor
}

func (f fakeAuthenticator) Authenticate(_ context.Context, header string) (*models.Actor, error) {
	if header != "Bearer good" {
		return nil, gameerr.ErrUnauthenticated
	}
	return f.actor, nil
}

func newTestServer(t *testing.T, actor *models.Actor) *connect.Client[apiv1.GetCurrentUserRequest, apiv1.GetCurrentUserResponse] {
	t.Helper()

	mux := http.NewServeMux()
	mux.Handle(apiv1.UserServiceGetCurrentUserProcedure, connect.NewUnaryHandler(
		apiv1.UserServiceGetCurrentUserProcedure,
		func(ctx context.Context, _ *connect.Request[apiv1.GetCurrentUserRequest]) (*connect.Response[apiv1.GetCurrentUserResponse], error) {
			a, err := auth.ActorFrom(ctx)
			if err != nil {
				return nil, gameerr.ToConnect(err)
			}
			return connect.NewResponse(&apiv1.GetCurrentUserResponse{User: *a}), nil
		},
		apiv1.HandlerOptions(ServerInterceptors(fakeAuthenticator{actor: actor}))...,
	))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return connect.NewClient[apiv1.GetCurrentUserRequest, apiv1.GetCurrentUserResponse](
		srv.Client(), srv.URL+apiv1.UserServiceGetCurrentUserProcedure, apiv1.ClientOptions()...,
	)
}

func TestAuthInterceptor(t *testing.T) {
	actor := &models.Actor{ID: uuid.New(), Email: "ada@example.com", Role: models.RoleUser}
	client := newTestServer(t, actor)

	req := connect.NewRequest(&apiv1.GetCurrentUserRequest{})
	req.Header().Set("Authorization", "Bearer good")
	res, err := client.CallUnary(context.Background(), req)
	if err != nil {
		t.Fatalf("CallUnary: %v", err)
	}
	if res.Msg.User.ID != actor.ID {
		t.Errorf("user = %v, want %v", res.Msg.User.ID, actor.ID)
	}

	_, err = client.CallUnary(context.Background(), connect.NewRequest(&apiv1.GetCurrentUserRequest{}))
	if connect.CodeOf(err) != connect.CodeUnauthenticated {
		t.Errorf("code = %v, want unauthenticated", connect.CodeOf(err))
	}
	if !errors.Is(gameerr.FromConnect(err), gameerr.ErrUnauthenticated) {
		t.Errorf("FromConnect = %v", gameerr.FromConnect(err))
	}
}

func TestAuthInterceptorPublicProcedure(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle(apiv1.AccountServiceSignInProcedure, connect.NewUnaryHandler(
		apiv1.AccountServiceSignInProcedure,
		func(ctx context.Context, _ *connect.Request[apiv1.SignInRequest]) (*connect.Response[apiv1.TokenResponse], error) {
			if _, err := auth.ActorFrom(ctx); err == nil {
				t.Error("public call carried an actor")
			}
			return connect.NewResponse(&apiv1.TokenResponse{AccessToken: "issued"}), nil
		},
		apiv1.HandlerOptions(ServerInterceptors(fakeAuthenticator{}, apiv1.PublicProcedures...))...,
	))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := connect.NewClient[apiv1.SignInRequest, apiv1.TokenResponse](
		srv.Client(), srv.URL+apiv1.AccountServiceSignInProcedure, apiv1.ClientOptions()...,
	)
	res, err := client.CallUnary(context.Background(), connect.NewRequest(&apiv1.SignInRequest{Email: "ada@example.com"}))
	if err != nil {
		t.Fatalf("CallUnary: %v", err)
	}
	if res.Msg.AccessToken != "issued" {
		t.Errorf("access token = %q", res.Msg.AccessToken)
	}
}
