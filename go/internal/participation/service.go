package participation

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	apiv1 "github.com/mcdev12/breakroom/go/internal/api/v1"
	"github.com/mcdev12/breakroom/go/internal/gameerr"
	"github.com/mcdev12/breakroom/go/internal/models"
)

// ParticipationApp defines what the service layer needs from the participation application
type ParticipationApp interface {
	JoinSession(ctx context.Context, sessionID uuid.UUID) (*JoinResult, error)
	LeaveSession(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)
	RemoveParticipant(ctx context.Context, sessionID, userID uuid.UUID) (*models.Session, error)
	ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]models.Participation, error)
}

// Service implements the ParticipationService RPC interface
type Service struct {
	app ParticipationApp
}

// NewService creates a new participation RPC service
func NewService(app ParticipationApp) *Service {
	return &Service{
		app: app,
	}
}

// RegisterHandlers mounts every ParticipationService procedure on mux.
func (s *Service) RegisterHandlers(mux *http.ServeMux, opts ...connect.HandlerOption) {
	opts = apiv1.HandlerOptions(opts...)
	mux.Handle(apiv1.ParticipationServiceJoinSessionProcedure,
		connect.NewUnaryHandler(apiv1.ParticipationServiceJoinSessionProcedure, s.JoinSession, opts...))
	mux.Handle(apiv1.ParticipationServiceLeaveSessionProcedure,
		connect.NewUnaryHandler(apiv1.ParticipationServiceLeaveSessionProcedure, s.LeaveSession, opts...))
	mux.Handle(apiv1.ParticipationServiceRemoveParticipantProcedure,
		connect.NewUnaryHandler(apiv1.ParticipationServiceRemoveParticipantProcedure, s.RemoveParticipant, opts...))
	mux.Handle(apiv1.ParticipationServiceListParticipantsProcedure,
		connect.NewUnaryHandler(apiv1.ParticipationServiceListParticipantsProcedure, s.ListParticipants, opts...))
}

// JoinSession joins the caller to a session
func (s *Service) JoinSession(ctx context.Context, req *connect.Request[apiv1.SessionRequest]) (*connect.Response[apiv1.JoinSessionResponse], error) {
	result, err := s.app.JoinSession(ctx, req.Msg.SessionID)
	if err != nil {
		return nil, gameerr.ToConnect(err)
	}
	session, err := result.Session.Public()
	if err != nil {
		return nil, gameerr.ToConnect(err)
	}
	return connect.NewResponse(&apiv1.JoinSessionResponse{
		Participation: result.Participation,
		Session:       session,
	}), nil
}

// LeaveSession removes the caller from a session
func (s *Service) LeaveSession(ctx context.Context, req *connect.Request[apiv1.SessionRequest]) (*connect.Response[apiv1.SessionResponse], error) {
	session, err := s.app.LeaveSession(ctx, req.Msg.SessionID)
	return sessionResponse(session, err)
}

// RemoveParticipant removes a participant from a session
func (s *Service) RemoveParticipant(ctx context.Context, req *connect.Request[apiv1.RemoveParticipantRequest]) (*connect.Response[apiv1.SessionResponse], error) {
	session, err := s.app.RemoveParticipant(ctx, req.Msg.SessionID, req.Msg.UserID)
	return sessionResponse(session, err)
}

// ListParticipants lists a session's active participants
func (s *Service) ListParticipants(ctx context.Context, req *connect.Request[apiv1.SessionRequest]) (*connect.Response[apiv1.ListParticipantsResponse], error) {
	participants, err := s.app.ListParticipants(ctx, req.Msg.SessionID)
	if err != nil {
		return nil, gameerr.ToConnect(err)
	}
	return connect.NewResponse(&apiv1.ListParticipantsResponse{Participants: participants}), nil
}

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
