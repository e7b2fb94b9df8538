package accounts

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	apiv1 "github.com/mcdev12/breakroom/go/internal/api/v1"
	"github.com/mcdev12/breakroom/go/internal/gameerr"
)

// AccountsApp defines what the service layer needs from the accounts application
type AccountsApp interface {
	Register(ctx context.Context, req RegisterRequest) (*Tokens, error)
	SignIn(ctx context.Context, email, password string) (*Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)
	SignOut(ctx context.Context, refreshToken string) error
	ChangePassword(ctx context.Context, current, next string) error
}

// Service implements the AccountService RPC interface
type Service struct {
	app AccountsApp
}

// NewService creates a new accounts RPC service
func NewService(app AccountsApp) *Service {
	return &Service{
		app: app,
	}
}

// RegisterHandlers mounts every AccountService procedure on mux.
// The interceptor chain must let apiv1.PublicProcedures through without a token.
func (s *Service) RegisterHandlers(mux *http.ServeMux, opts ...connect.HandlerOption) {
	opts = apiv1.HandlerOptions(opts...)
	mux.Handle(apiv1.AccountServiceRegisterProcedure,
		connect.NewUnaryHandler(apiv1.AccountServiceRegisterProcedure, s.Register, opts...))
	mux.Handle(apiv1.AccountServiceSignInProcedure,
		connect.NewUnaryHandler(apiv1.AccountServiceSignInProcedure, s.SignIn, opts...))
	mux.Handle(apiv1.AccountServiceRefreshProcedure,
		connect.NewUnaryHandler(apiv1.AccountServiceRefreshProcedure, s.Refresh, opts...))
	mux.Handle(apiv1.AccountServiceSignOutProcedure,
		connect.NewUnaryHandler(apiv1.AccountServiceSignOutProcedure, s.SignOut, opts...))
	mux.Handle(apiv1.AccountServiceChangePasswordProcedure,
		connect.NewUnaryHandler(apiv1.AccountServiceChangePasswordProcedure, s.ChangePassword, opts...))
}

// Register creates an account and returns its first token pair
func (s *Service) Register(ctx context.Context, req *connect.Request[apiv1.RegisterRequest]) (*connect.Response[apiv1.TokenResponse], error) {
	tokens, err := s.app.Register(ctx, RegisterRequest{
		Email:    req.Msg.Email,
		Password: req.Msg.Password,
		FullName: req.Msg.FullName,
	})
	return tokenResponse(tokens, err)
}

// SignIn exchanges an email and password for a token pair
func (s *Service) SignIn(ctx context.Context, req *connect.Request[apiv1.SignInRequest]) (*connect.Response[apiv1.TokenResponse], error) {
	tokens, err := s.app.SignIn(ctx, req.Msg.Email, req.Msg.Password)
	return tokenResponse(tokens, err)
}

// Refresh rotates a refresh token
func (s *Service) Refresh(ctx context.Context, req *connect.Request[apiv1.RefreshRequest]) (*connect.Response[apiv1.TokenResponse], error) {
	tokens, err := s.app.Refresh(ctx, req.Msg.RefreshToken)
	return tokenResponse(tokens, err)
}

// SignOut revokes a refresh token
func (s *Service) SignOut(ctx context.Context, req *connect.Request[apiv1.RefreshRequest]) (*connect.Response[apiv1.SignOutResponse], error) {
	if err := s.app.SignOut(ctx, req.Msg.RefreshToken); err != nil {
		return nil, gameerr.ToConnect(err)
	}
	return connect.NewResponse(&apiv1.SignOutResponse{}), nil
}

// ChangePassword replaces the caller's password
func (s *Service) ChangePassword(ctx context.Context, req *connect.Request[apiv1.ChangePasswordRequest]) (*connect.Response[apiv1.ChangePasswordResponse], error) {
	if err := s.app.ChangePassword(ctx, req.Msg.CurrentPassword, req.Msg.NewPassword); err != nil {
		return nil, gameerr.ToConnect(err)
	}
	return connect.NewResponse(&apiv1.ChangePasswordResponse{}), nil
}

func tokenResponse(tokens *Tokens, err error) (*connect.Response[apiv1.TokenResponse], error) {
	if err != nil {
		return nil, gameerr.ToConnect(err)
	}
	return connect.NewResponse(&apiv1.TokenResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
		User:         tokens.User,
	}), nil
}
