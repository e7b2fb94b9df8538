package users

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	apiv1 "github.com/mcdev12/breakroom/go/internal/api/v1"
	"github.com/mcdev12/breakroom/go/internal/gameerr"
	"github.com/mcdev12/breakroom/go/internal/models"
)

// UsersApp defines what the service layer needs from the users application
type UsersApp interface {
	GetCurrentUser(ctx context.Context) (*models.Actor, models.RolePermissions, error)
	UpdateProfile(ctx context.Context, req UpdateProfileRequest) (*models.Actor, error)
}

// Service implements the UserService RPC interface
type Service struct {
	app UsersApp
}

// NewService creates a new users RPC service
func NewService(app UsersApp) *Service {
	return &Service{
		app: app,
	}
}

// RegisterHandlers mounts every UserService procedure on mux.
func (s *Service) RegisterHandlers(mux *http.ServeMux, opts ...connect.HandlerOption) {
	opts = apiv1.HandlerOptions(opts...)
	mux.Handle(apiv1.UserServiceGetCurrentUserProcedure,
		connect.NewUnaryHandler(apiv1.UserServiceGetCurrentUserProcedure, s.GetCurrentUser, opts...))
	mux.Handle(apiv1.UserServiceUpdateProfileProcedure,
		connect.NewUnaryHandler(apiv1.UserServiceUpdateProfileProcedure, s.UpdateProfile, opts...))
}

// GetCurrentUser returns the caller's profile
func (s *Service) GetCurrentUser(ctx context.Context, req *connect.Request[apiv1.GetCurrentUserRequest]) (*connect.Response[apiv1.GetCurrentUserResponse], error) {
	actor, perms, err := s.app.GetCurrentUser(ctx)
	if err != nil {
		return nil, gameerr.ToConnect(err)
	}

	return connect.NewResponse(&apiv1.GetCurrentUserResponse{
		User:        *actor,
		Permissions: perms,
	}), nil
}

// UpdateProfile edits the caller's profile
func (s *Service) UpdateProfile(ctx context.Context, req *connect.Request[apiv1.UpdateProfileRequest]) (*connect.Response[apiv1.UpdateProfileResponse], error) {
	actor, err := s.app.UpdateProfile(ctx, UpdateProfileRequest{
		FullName:   req.Msg.FullName,
		AvatarURL:  req.Msg.AvatarURL,
		Department: req.Msg.Department,
	})
	if err != nil {
		return nil, gameerr.ToConnect(err)
	}

	return connect.NewResponse(&apiv1.UpdateProfileResponse{
		User: *actor,
	}), nil
}
