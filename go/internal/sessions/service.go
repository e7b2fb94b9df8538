package sessions

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	apiv1 "github.com/mcdev12/breakroom/go/internal/api/v1"
	"github.com/mcdev12/breakroom/go/internal/gameerr"
	"github.com/mcdev12/breakroom/go/internal/models"
)

// SessionsApp defines what the service layer needs from the sessions application
type SessionsApp interface {
	ListSessions(ctx context.Context) ([]models.Session, error)
	ListMySessions(ctx context.Context) ([]models.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	CreateSession(ctx context.Context, req CreateSessionRequest) (*models.Session, error)
	UpdateSession(ctx context.Context, id uuid.UUID, req UpdateSessionRequest) (*models.Session, error)
	StartSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	EndSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	EndAllActiveSessions(ctx context.Context) (models.BulkResult, error)
	FinishSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
}

// Service implements the SessionService RPC interface
type Service struct {
	app SessionsApp
}

// NewService creates a new sessions RPC service
func NewService(app SessionsApp) *Service {
	return &Service{
		app: app,
	}
}

// RegisterHandlers mounts every SessionService procedure on mux.
func (s *Service) RegisterHandlers(mux *http.ServeMux, opts ...connect.HandlerOption) {
	opts = apiv1.HandlerOptions(opts...)
	mux.Handle(apiv1.SessionServiceListSessionsProcedure,
		connect.NewUnaryHandler(apiv1.SessionServiceListSessionsProcedure, s.ListSessions, opts...))
	mux.Handle(apiv1.SessionServiceListMySessionsProcedure,
		connect.NewUnaryHandler(apiv1.SessionServiceListMySessionsProcedure, s.ListMySessions, opts...))
	mux.Handle(apiv1.SessionServiceGetSessionProcedure,
		connect.NewUnaryHandler(apiv1.SessionServiceGetSessionProcedure, s.GetSession, opts...))
	mux.Handle(apiv1.SessionServiceCreateSessionProcedure,
		connect.NewUnaryHandler(apiv1.SessionServiceCreateSessionProcedure, s.CreateSession, opts...))
	mux.Handle(apiv1.SessionServiceUpdateSessionProcedure,
		connect.NewUnaryHandler(apiv1.SessionServiceUpdateSessionProcedure, s.UpdateSession, opts...))
	mux.Handle(apiv1.SessionServiceStartSessionProcedure,
		connect.NewUnaryHandler(apiv1.SessionServiceStartSessionProcedure, s.StartSession, opts...))
	mux.Handle(apiv1.SessionServiceEndSessionProcedure,
		connect.NewUnaryHandler(apiv1.SessionServiceEndSessionProcedure, s.EndSession, opts...))
	mux.Handle(apiv1.SessionServiceEndAllActiveSessionsProcedure,
		connect.NewUnaryHandler(apiv1.SessionServiceEndAllActiveSessionsProcedure, s.EndAllActiveSessions, opts...))
	mux.Handle(apiv1.SessionServiceFinishSessionProcedure,
		connect.NewUnaryHandler(apiv1.SessionServiceFinishSessionProcedure, s.FinishSession, opts...))
	mux.Handle(apiv1.SessionServiceDeleteSessionProcedure,
		connect.NewUnaryHandler(apiv1.SessionServiceDeleteSessionProcedure, s.DeleteSession, opts...))
}

// ListSessions lists the sessions visible to the caller
func (s *Service) ListSessions(ctx context.Context, req *connect.Request[apiv1.ListSessionsRequest]) (*connect.Response[apiv1.ListSessionsResponse], error) {
	sessions, err := s.app.ListSessions(ctx)
	return listResponse(sessions, err)
}

// ListMySessions lists the sessions the caller created
func (s *Service) ListMySessions(ctx context.Context, req *connect.Request[apiv1.ListMySessionsRequest]) (*connect.Response[apiv1.ListSessionsResponse], error) {
	sessions, err := s.app.ListMySessions(ctx)
	return listResponse(sessions, err)
}

// GetSession retrieves a session by ID
func (s *Service) GetSession(ctx context.Context, req *connect.Request[apiv1.SessionRequest]) (*connect.Response[apiv1.SessionResponse], error) {
	session, err := s.app.GetSession(ctx, req.Msg.SessionID)
	return sessionResponse(session, err)
}

// CreateSession creates a new session
func (s *Service) CreateSession(ctx context.Context, req *connect.Request[apiv1.CreateSessionRequest]) (*connect.Response[apiv1.SessionResponse], error) {
	appReq := CreateSessionRequest{
		Name:       req.Msg.Name,
		Kind:       req.Msg.Kind,
		MinPlayers: req.Msg.MinPlayers,
		MaxPlayers: req.Msg.MaxPlayers,
	}
	if req.Msg.Poll != nil {
		appReq.PollQuestion = req.Msg.Poll.Question
		appReq.PollOptions = req.Msg.Poll.Options
	}

	session, err := s.app.CreateSession(ctx, appReq)
	return sessionResponse(session, err)
}

// UpdateSession edits a session's lobby settings
func (s *Service) UpdateSession(ctx context.Context, req *connect.Request[apiv1.UpdateSessionRequest]) (*connect.Response[apiv1.SessionResponse], error) {
	session, err := s.app.UpdateSession(ctx, req.Msg.SessionID, UpdateSessionRequest{
		Name:            req.Msg.Name,
		MinPlayers:      req.Msg.MinPlayers,
		MaxPlayers:      req.Msg.MaxPlayers,
		ClearMaxPlayers: req.Msg.ClearMaxPlayers,
	})
	return sessionResponse(session, err)
}

// StartSession starts a ready session
func (s *Service) StartSession(ctx context.Context, req *connect.Request[apiv1.SessionRequest]) (*connect.Response[apiv1.SessionResponse], error) {
	session, err := s.app.StartSession(ctx, req.Msg.SessionID)
	return sessionResponse(session, err)
}

// EndSession ends an active session
func (s *Service) EndSession(ctx context.Context, req *connect.Request[apiv1.SessionRequest]) (*connect.Response[apiv1.SessionResponse], error) {
	session, err := s.app.EndSession(ctx, req.Msg.SessionID)
	return sessionResponse(session, err)
}

// EndAllActiveSessions ends every active session
func (s *Service) EndAllActiveSessions(ctx context.Context, req *connect.Request[apiv1.EndAllActiveSessionsRequest]) (*connect.Response[apiv1.EndAllActiveSessionsResponse], error) {
	result, err := s.app.EndAllActiveSessions(ctx)
	if err != nil {
		return nil, gameerr.ToConnect(err)
	}
	return connect.NewResponse(&apiv1.EndAllActiveSessionsResponse{Result: result}), nil
}

// FinishSession marks an active session finished
func (s *Service) FinishSession(ctx context.Context, req *connect.Request[apiv1.SessionRequest]) (*connect.Response[apiv1.SessionResponse], error) {
	session, err := s.app.FinishSession(ctx, req.Msg.SessionID)
	return sessionResponse(session, err)
}

// DeleteSession deletes a session
func (s *Service) DeleteSession(ctx context.Context, req *connect.Request[apiv1.SessionRequest]) (*connect.Response[apiv1.DeleteSessionResponse], error) {
	if err := s.app.DeleteSession(ctx, req.Msg.SessionID); err != nil {
		return nil, gameerr.ToConnect(err)
	}
	return connect.NewResponse(&apiv1.DeleteSessionResponse{}), nil
}

// sessionResponse and listResponse only ever send the public form of the state.
func sessionResponse(session *models.Session, err error) (*connect.Response[apiv1.SessionResponse], error) {
	if err != nil {
		return nil, gameerr.ToConnect(err)
	}
	public, err := session.Public()
	if err != nil {
		return nil, gameerr.ToConnect(err)
	}
	return connect.NewResponse(&apiv1.SessionResponse{Session: public}), nil
}

func listResponse(sessions []models.Session, err error) (*connect.Response[apiv1.ListSessionsResponse], error) {
	if err != nil {
		return nil, gameerr.ToConnect(err)
	}
	public, err := models.PublicSessions(sessions)
	if err != nil {
		return nil, gameerr.ToConnect(err)
	}
	return connect.NewResponse(&apiv1.ListSessionsResponse{Sessions: public}), nil
}
