package arbiter

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	apiv1 "github.com/mcdev12/breakroom/go/internal/api/v1"
	"github.com/mcdev12/breakroom/go/internal/gameerr"
	"github.com/mcdev12/breakroom/go/internal/models"
)

// ArbiterApp defines what the service layer needs from the arbiter application
type ArbiterApp interface {
	PressBuzzer(ctx context.Context, sessionID uuid.UUID, correlationID string) (*PressResult, error)
	ResetBuzzer(ctx context.Context, sessionID uuid.UUID) (*models.BuzzerState, error)
	SpinBottle(ctx context.Context, sessionID uuid.UUID, correlationID string) (*models.SpinResult, error)
	StartTriviaRound(ctx context.Context, sessionID uuid.UUID) (*models.TriviaState, error)
	SubmitAnswer(ctx context.Context, sessionID uuid.UUID, answer int, correlationID string) (*models.TriviaAnswer, error)
	CloseTriviaRound(ctx context.Context, sessionID uuid.UUID) (*models.TriviaState, error)
	CastVote(ctx context.Context, sessionID uuid.UUID, option int, correlationID string) (*models.PollState, error)
	ClosePoll(ctx context.Context, sessionID uuid.UUID) (*models.PollState, error)
}

// Service implements the ArbiterService RPC interface
type Service struct {
	app ArbiterApp
}

// NewService creates a new arbiter RPC service
func NewService(app ArbiterApp) *Service {
	return &Service{
		app: app,
	}
}

// RegisterHandlers mounts every ArbiterService procedure on mux.
func (s *Service) RegisterHandlers(mux *http.ServeMux, opts ...connect.HandlerOption) {
	opts = apiv1.HandlerOptions(opts...)
	mux.Handle(apiv1.ArbiterServicePressBuzzerProcedure,
		connect.NewUnaryHandler(apiv1.ArbiterServicePressBuzzerProcedure, s.PressBuzzer, opts...))
	mux.Handle(apiv1.ArbiterServiceResetBuzzerProcedure,
		connect.NewUnaryHandler(apiv1.ArbiterServiceResetBuzzerProcedure, s.ResetBuzzer, opts...))
	mux.Handle(apiv1.ArbiterServiceSpinBottleProcedure,
		connect.NewUnaryHandler(apiv1.ArbiterServiceSpinBottleProcedure, s.SpinBottle, opts...))
	mux.Handle(apiv1.ArbiterServiceStartTriviaRoundProcedure,
		connect.NewUnaryHandler(apiv1.ArbiterServiceStartTriviaRoundProcedure, s.StartTriviaRound, opts...))
	mux.Handle(apiv1.ArbiterServiceSubmitAnswerProcedure,
		connect.NewUnaryHandler(apiv1.ArbiterServiceSubmitAnswerProcedure, s.SubmitAnswer, opts...))
	mux.Handle(apiv1.ArbiterServiceCloseTriviaRoundProcedure,
		connect.NewUnaryHandler(apiv1.ArbiterServiceCloseTriviaRoundProcedure, s.CloseTriviaRound, opts...))
	mux.Handle(apiv1.ArbiterServiceCastVoteProcedure,
		connect.NewUnaryHandler(apiv1.ArbiterServiceCastVoteProcedure, s.CastVote, opts...))
	mux.Handle(apiv1.ArbiterServiceClosePollProcedure,
		connect.NewUnaryHandler(apiv1.ArbiterServiceClosePollProcedure, s.ClosePoll, opts...))
}

// PressBuzzer presses the caller's buzzer
func (s *Service) PressBuzzer(ctx context.Context, req *connect.Request[apiv1.ActionRequest]) (*connect.Response[apiv1.PressBuzzerResponse], error) {
	result, err := s.app.PressBuzzer(ctx, req.Msg.SessionID, req.Msg.CorrelationID)
	if err != nil {
		return nil, gameerr.ToConnect(err)
	}
	return connect.NewResponse(&apiv1.PressBuzzerResponse{
		Press: result.Press,
		State: result.State,
	}), nil
}

// ResetBuzzer starts the next buzzer round
func (s *Service) ResetBuzzer(ctx context.Context, req *connect.Request[apiv1.SessionRequest]) (*connect.Response[apiv1.BuzzerStateResponse], error) {
	state, err := s.app.ResetBuzzer(ctx, req.Msg.SessionID)
	if err != nil {
		return nil, gameerr.ToConnect(err)
	}
	return connect.NewResponse(&apiv1.BuzzerStateResponse{State: *state}), nil
}

// SpinBottle spins the bottle
func (s *Service) SpinBottle(ctx context.Context, req *connect.Request[apiv1.ActionRequest]) (*connect.Response[apiv1.SpinBottleResponse], error) {
	result, err := s.app.SpinBottle(ctx, req.Msg.SessionID, req.Msg.CorrelationID)
	if err != nil {
		return nil, gameerr.ToConnect(err)
	}
	return connect.NewResponse(&apiv1.SpinBottleResponse{Result: *result}), nil
}

// StartTriviaRound opens the next trivia question
func (s *Service) StartTriviaRound(ctx context.Context, req *connect.Request[apiv1.SessionRequest]) (*connect.Response[apiv1.TriviaStateResponse], error) {
	state, err := s.app.StartTriviaRound(ctx, req.Msg.SessionID)
	if err != nil {
		return nil, gameerr.ToConnect(err)
	}
	return connect.NewResponse(&apiv1.TriviaStateResponse{State: *state}), nil
}

// SubmitAnswer answers the open trivia question
func (s *Service) SubmitAnswer(ctx context.Context, req *connect.Request[apiv1.SubmitAnswerRequest]) (*connect.Response[apiv1.SubmitAnswerResponse], error) {
	answer, err := s.app.SubmitAnswer(ctx, req.Msg.SessionID, req.Msg.Answer, req.Msg.CorrelationID)
	if err != nil {
		return nil, gameerr.ToConnect(err)
	}
	return connect.NewResponse(&apiv1.SubmitAnswerResponse{Answer: *answer}), nil
}

// CloseTriviaRound closes the open trivia question early
func (s *Service) CloseTriviaRound(ctx context.Context, req *connect.Request[apiv1.SessionRequest]) (*connect.Response[apiv1.TriviaStateResponse], error) {
	state, err := s.app.CloseTriviaRound(ctx, req.Msg.SessionID)
	if err != nil {
		return nil, gameerr.ToConnect(err)
	}
	return connect.NewResponse(&apiv1.TriviaStateResponse{State: *state}), nil
}

// CastVote votes in a poll
func (s *Service) CastVote(ctx context.Context, req *connect.Request[apiv1.CastVoteRequest]) (*connect.Response[apiv1.PollStateResponse], error) {
	state, err := s.app.CastVote(ctx, req.Msg.SessionID, req.Msg.Option, req.Msg.CorrelationID)
	if err != nil {
		return nil, gameerr.ToConnect(err)
	}
	return connect.NewResponse(&apiv1.PollStateResponse{State: *state}), nil
}

// ClosePoll closes a poll
func (s *Service) ClosePoll(ctx context.Context, req *connect.Request[apiv1.SessionRequest]) (*connect.Response[apiv1.PollStateResponse], error) {
	state, err := s.app.ClosePoll(ctx, req.Msg.SessionID)
	if err != nil {
		return nil, gameerr.ToConnect(err)
	}
	return connect.NewResponse(&apiv1.PollStateResponse{State: *state}), nil
}
