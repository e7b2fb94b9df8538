// Package breakroom is the Go client for the breakroom game service: RPC calls, the realtime
// change feed, and the reconciliation helpers a UI builds on.
package breakroom

import (
	"context"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	apiv1 "github.com/mcdev12/breakroom/go/internal/api/v1"
	"github.com/mcdev12/breakroom/go/internal/gameerr"
	"github.com/mcdev12/breakroom/go/internal/models"
)

// TokenSource supplies the bearer token for outgoing calls. An empty token sends no header.
type TokenSource interface {
	Token() string
}

// Client calls the breakroom RPC services. Errors are returned in the gameerr taxonomy.
type Client struct {
	baseURL  string
	inflight singleflight.Group

	register       *connect.Client[apiv1.RegisterRequest, apiv1.TokenResponse]
	signIn         *connect.Client[apiv1.SignInRequest, apiv1.TokenResponse]
	refresh        *connect.Client[apiv1.RefreshRequest, apiv1.TokenResponse]
	signOut        *connect.Client[apiv1.RefreshRequest, apiv1.SignOutResponse]
	changePassword *connect.Client[apiv1.ChangePasswordRequest, apiv1.ChangePasswordResponse]

	getCurrentUser *connect.Client[apiv1.GetCurrentUserRequest, apiv1.GetCurrentUserResponse]
	updateProfile  *connect.Client[apiv1.UpdateProfileRequest, apiv1.UpdateProfileResponse]

	listSessions         *connect.Client[apiv1.ListSessionsRequest, apiv1.ListSessionsResponse]
	listMySessions       *connect.Client[apiv1.ListMySessionsRequest, apiv1.ListSessionsResponse]
	getSession           *connect.Client[apiv1.SessionRequest, apiv1.SessionResponse]
	createSession        *connect.Client[apiv1.CreateSessionRequest, apiv1.SessionResponse]
	updateSession        *connect.Client[apiv1.UpdateSessionRequest, apiv1.SessionResponse]
	startSession         *connect.Client[apiv1.SessionRequest, apiv1.SessionResponse]
	endSession           *connect.Client[apiv1.SessionRequest, apiv1.SessionResponse]
	endAllActiveSessions *connect.Client[apiv1.EndAllActiveSessionsRequest, apiv1.EndAllActiveSessionsResponse]
	finishSession        *connect.Client[apiv1.SessionRequest, apiv1.SessionResponse]
	deleteSession        *connect.Client[apiv1.SessionRequest, apiv1.DeleteSessionResponse]

	joinSession       *connect.Client[apiv1.SessionRequest, apiv1.JoinSessionResponse]
	leaveSession      *connect.Client[apiv1.SessionRequest, apiv1.SessionResponse]
	removeParticipant *connect.Client[apiv1.RemoveParticipantRequest, apiv1.SessionResponse]
	listParticipants  *connect.Client[apiv1.SessionRequest, apiv1.ListParticipantsResponse]

	pressBuzzer      *connect.Client[apiv1.ActionRequest, apiv1.PressBuzzerResponse]
	resetBuzzer      *connect.Client[apiv1.SessionRequest, apiv1.BuzzerStateResponse]
	spinBottle       *connect.Client[apiv1.ActionRequest, apiv1.SpinBottleResponse]
	startTriviaRound *connect.Client[apiv1.SessionRequest, apiv1.TriviaStateResponse]
	submitAnswer     *connect.Client[apiv1.SubmitAnswerRequest, apiv1.SubmitAnswerResponse]
	closeTriviaRound *connect.Client[apiv1.SessionRequest, apiv1.TriviaStateResponse]
	castVote         *connect.Client[apiv1.CastVoteRequest, apiv1.PollStateResponse]
	closePoll        *connect.Client[apiv1.SessionRequest, apiv1.PollStateResponse]
}

// NewClient creates a client for the API server at baseURL. A nil httpClient uses a
// client with a 30 second timeout.
func NewClient(baseURL string, tokens TokenSource, httpClient connect.HTTPClient) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL = strings.TrimRight(baseURL, "/")
	opts := apiv1.ClientOptions(connect.WithInterceptors(bearerInterceptor(tokens)))

	return &Client{
		baseURL: baseURL,

		register:       connect.NewClient[apiv1.RegisterRequest, apiv1.TokenResponse](httpClient, baseURL+apiv1.AccountServiceRegisterProcedure, opts...),
		signIn:         connect.NewClient[apiv1.SignInRequest, apiv1.TokenResponse](httpClient, baseURL+apiv1.AccountServiceSignInProcedure, opts...),
		refresh:        connect.NewClient[apiv1.RefreshRequest, apiv1.TokenResponse](httpClient, baseURL+apiv1.AccountServiceRefreshProcedure, opts...),
		signOut:        connect.NewClient[apiv1.RefreshRequest, apiv1.SignOutResponse](httpClient, baseURL+apiv1.AccountServiceSignOutProcedure, opts...),
		changePassword: connect.NewClient[apiv1.ChangePasswordRequest, apiv1.ChangePasswordResponse](httpClient, baseURL+apiv1.AccountServiceChangePasswordProcedure, opts...),

		getCurrentUser: connect.NewClient[apiv1.GetCurrentUserRequest, apiv1.GetCurrentUserResponse](httpClient, baseURL+apiv1.UserServiceGetCurrentUserProcedure, opts...),
		updateProfile:  connect.NewClient[apiv1.UpdateProfileRequest, apiv1.UpdateProfileResponse](httpClient, baseURL+apiv1.UserServiceUpdateProfileProcedure, opts...),

		listSessions:         connect.NewClient[apiv1.ListSessionsRequest, apiv1.ListSessionsResponse](httpClient, baseURL+apiv1.SessionServiceListSessionsProcedure, opts...),
		listMySessions:       connect.NewClient[apiv1.ListMySessionsRequest, apiv1.ListSessionsResponse](httpClient, baseURL+apiv1.SessionServiceListMySessionsProcedure, opts...),
		getSession:           connect.NewClient[apiv1.SessionRequest, apiv1.SessionResponse](httpClient, baseURL+apiv1.SessionServiceGetSessionProcedure, opts...),
		createSession:        connect.NewClient[apiv1.CreateSessionRequest, apiv1.SessionResponse](httpClient, baseURL+apiv1.SessionServiceCreateSessionProcedure, opts...),
		updateSession:        connect.NewClient[apiv1.UpdateSessionRequest, apiv1.SessionResponse](httpClient, baseURL+apiv1.SessionServiceUpdateSessionProcedure, opts...),
		startSession:         connect.NewClient[apiv1.SessionRequest, apiv1.SessionResponse](httpClient, baseURL+apiv1.SessionServiceStartSessionProcedure, opts...),
		endSession:           connect.NewClient[apiv1.SessionRequest, apiv1.SessionResponse](httpClient, baseURL+apiv1.SessionServiceEndSessionProcedure, opts...),
		endAllActiveSessions: connect.NewClient[apiv1.EndAllActiveSessionsRequest, apiv1.EndAllActiveSessionsResponse](httpClient, baseURL+apiv1.SessionServiceEndAllActiveSessionsProcedure, opts...),
		finishSession:        connect.NewClient[apiv1.SessionRequest, apiv1.SessionResponse](httpClient, baseURL+apiv1.SessionServiceFinishSessionProcedure, opts...),
		deleteSession:        connect.NewClient[apiv1.SessionRequest, apiv1.DeleteSessionResponse](httpClient, baseURL+apiv1.SessionServiceDeleteSessionProcedure, opts...),

		joinSession:       connect.NewClient[apiv1.SessionRequest, apiv1.JoinSessionResponse](httpClient, baseURL+apiv1.ParticipationServiceJoinSessionProcedure, opts...),
		leaveSession:      connect.NewClient[apiv1.SessionRequest, apiv1.SessionResponse](httpClient, baseURL+apiv1.ParticipationServiceLeaveSessionProcedure, opts...),
		removeParticipant: connect.NewClient[apiv1.RemoveParticipantRequest, apiv1.SessionResponse](httpClient, baseURL+apiv1.ParticipationServiceRemoveParticipantProcedure, opts...),
		listParticipants:  connect.NewClient[apiv1.SessionRequest, apiv1.ListParticipantsResponse](httpClient, baseURL+apiv1.ParticipationServiceListParticipantsProcedure, opts...),

		pressBuzzer:      connect.NewClient[apiv1.ActionRequest, apiv1.PressBuzzerResponse](httpClient, baseURL+apiv1.ArbiterServicePressBuzzerProcedure, opts...),
		resetBuzzer:      connect.NewClient[apiv1.SessionRequest, apiv1.BuzzerStateResponse](httpClient, baseURL+apiv1.ArbiterServiceResetBuzzerProcedure, opts...),
		spinBottle:       connect.NewClient[apiv1.ActionRequest, apiv1.SpinBottleResponse](httpClient, baseURL+apiv1.ArbiterServiceSpinBottleProcedure, opts...),
		startTriviaRound: connect.NewClient[apiv1.SessionRequest, apiv1.TriviaStateResponse](httpClient, baseURL+apiv1.ArbiterServiceStartTriviaRoundProcedure, opts...),
		submitAnswer:     connect.NewClient[apiv1.SubmitAnswerRequest, apiv1.SubmitAnswerResponse](httpClient, baseURL+apiv1.ArbiterServiceSubmitAnswerProcedure, opts...),
		closeTriviaRound: connect.NewClient[apiv1.SessionRequest, apiv1.TriviaStateResponse](httpClient, baseURL+apiv1.ArbiterServiceCloseTriviaRoundProcedure, opts...),
		castVote:         connect.NewClient[apiv1.CastVoteRequest, apiv1.PollStateResponse](httpClient, baseURL+apiv1.ArbiterServiceCastVoteProcedure, opts...),
		closePoll:        connect.NewClient[apiv1.SessionRequest, apiv1.PollStateResponse](httpClient, baseURL+apiv1.ArbiterServiceClosePollProcedure, opts...),
	}
}

func bearerInterceptor(tokens TokenSource) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if tokens != nil {
				if token := tokens.Token(); token != "" {
					req.Header().Set("Authorization", "Bearer "+token)
				}
			}
			return next(ctx, req)
		}
	}
}

func call[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], req *Req) (*Res, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, gameerr.FromConnect(err)
	}
	return resp.Msg, nil
}

// collapse shares one in-flight call between identical (action, session) requests, so a
// double click produces one RPC and both callers see its result.
func collapse[T any](c *Client, action string, sessionID uuid.UUID, fn func() (T, error)) (T, error) {
	v, err, _ := c.inflight.Do(action+":"+sessionID.String(), func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// Accounts

// Register creates a password account. The returned access token is not installed anywhere;
// hand it to AuthContext.SetToken to sign in.
func (c *Client) Register(ctx context.Context, req apiv1.RegisterRequest) (*apiv1.TokenResponse, error) {
	return call(ctx, c.register, &req)
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*apiv1.TokenResponse, error) {
	return call(ctx, c.signIn, &apiv1.SignInRequest{Email: email, Password: password})
}

// Refresh trades a refresh token for a new pair. The old refresh token stops working.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*apiv1.TokenResponse, error) {
	return call(ctx, c.refresh, &apiv1.RefreshRequest{RefreshToken: refreshToken})
}

func (c *Client) SignOut(ctx context.Context, refreshToken string) error {
	_, err := call(ctx, c.signOut, &apiv1.RefreshRequest{RefreshToken: refreshToken})
	return err
}

func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	_, err := call(ctx, c.changePassword, &apiv1.ChangePasswordRequest{CurrentPassword: current, NewPassword: next})
	return err
}

// User

func (c *Client) GetCurrentUser(ctx context.Context) (*models.Actor, models.RolePermissions, error) {
	resp, err := call(ctx, c.getCurrentUser, &apiv1.GetCurrentUserRequest{})
	if err != nil {
		return nil, models.RolePermissions{}, err
	}
	return &resp.User, resp.Permissions, nil
}

func (c *Client) UpdateProfile(ctx context.Context, req apiv1.UpdateProfileRequest) (*models.Actor, error) {
	resp, err := call(ctx, c.updateProfile, &req)
	if err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// Session directory and lifecycle

// ListSessions returns the sessions visible to the caller. An empty directory is an empty slice.
func (c *Client) ListSessions(ctx context.Context) ([]models.Session, error) {
	resp, err := call(ctx, c.listSessions, &apiv1.ListSessionsRequest{})
	if err != nil {
		return nil, err
	}
	return nonNil(resp.Sessions), nil
}

func (c *Client) ListMySessions(ctx context.Context) ([]models.Session, error) {
	resp, err := call(ctx, c.listMySessions, &apiv1.ListMySessionsRequest{})
	if err != nil {
		return nil, err
	}
	return nonNil(resp.Sessions), nil
}

func (c *Client) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return sessionCall(ctx, c.getSession, id)
}

func (c *Client) CreateSession(ctx context.Context, req apiv1.CreateSessionRequest) (*models.Session, error) {
	resp, err := call(ctx, c.createSession, &req)
	if err != nil {
		return nil, err
	}
	return &resp.Session, nil
}

func (c *Client) UpdateSession(ctx context.Context, req apiv1.UpdateSessionRequest) (*models.Session, error) {
	resp, err := call(ctx, c.updateSession, &req)
	if err != nil {
		return nil, err
	}
	return &resp.Session, nil
}

func (c *Client) StartSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return collapse(c, "start", id, func() (*models.Session, error) {
		return sessionCall(ctx, c.startSession, id)
	})
}

func (c *Client) EndSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return collapse(c, "end", id, func() (*models.Session, error) {
		return sessionCall(ctx, c.endSession, id)
	})
}

func (c *Client) EndAllActiveSessions(ctx context.Context) (models.BulkResult, error) {
	resp, err := call(ctx, c.endAllActiveSessions, &apiv1.EndAllActiveSessionsRequest{})
	if err != nil {
		return models.BulkResult{}, err
	}
	return resp.Result, nil
}

func (c *Client) FinishSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return collapse(c, "finish", id, func() (*models.Session, error) {
		return sessionCall(ctx, c.finishSession, id)
	})
}

func (c *Client) DeleteSession(ctx context.Context, id uuid.UUID) error {
	_, err := collapse(c, "delete", id, func() (*apiv1.DeleteSessionResponse, error) {
		return call(ctx, c.deleteSession, &apiv1.SessionRequest{SessionID: id})
	})
	return err
}

// Participation

func (c *Client) JoinSession(ctx context.Context, id uuid.UUID) (*apiv1.JoinSessionResponse, error) {
	return collapse(c, "join", id, func() (*apiv1.JoinSessionResponse, error) {
		return call(ctx, c.joinSession, &apiv1.SessionRequest{SessionID: id})
	})
}

func (c *Client) LeaveSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	return collapse(c, "leave", id, func() (*models.Session, error) {
		return sessionCall(ctx, c.leaveSession, id)
	})
}

func (c *Client) RemoveParticipant(ctx context.Context, sessionID, userID uuid.UUID) (*models.Session, error) {
	resp, err := call(ctx, c.removeParticipant, &apiv1.RemoveParticipantRequest{SessionID: sessionID, UserID: userID})
	if err != nil {
		return nil, err
	}
	return &resp.Session, nil
}

func (c *Client) ListParticipants(ctx context.Context, sessionID uuid.UUID) ([]models.Participation, error) {
	resp, err := call(ctx, c.listParticipants, &apiv1.SessionRequest{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	return nonNil(resp.Participants), nil
}

// Gameplay

func (c *Client) PressBuzzer(ctx context.Context, sessionID uuid.UUID, correlationID string) (*apiv1.PressBuzzerResponse, error) {
	return collapse(c, "press", sessionID, func() (*apiv1.PressBuzzerResponse, error) {
		return call(ctx, c.pressBuzzer, &apiv1.ActionRequest{SessionID: sessionID, CorrelationID: correlationID})
	})
}

func (c *Client) ResetBuzzer(ctx context.Context, sessionID uuid.UUID) (*models.BuzzerState, error) {
	resp, err := collapse(c, "reset", sessionID, func() (*apiv1.BuzzerStateResponse, error) {
		return call(ctx, c.resetBuzzer, &apiv1.SessionRequest{SessionID: sessionID})
	})
	if err != nil {
		return nil, err
	}
	return &resp.State, nil
}

func (c *Client) SpinBottle(ctx context.Context, sessionID uuid.UUID, correlationID string) (*models.SpinResult, error) {
	resp, err := collapse(c, "spin", sessionID, func() (*apiv1.SpinBottleResponse, error) {
		return call(ctx, c.spinBottle, &apiv1.ActionRequest{SessionID: sessionID, CorrelationID: correlationID})
	})
	if err != nil {
		return nil, err
	}
	return &resp.Result, nil
}

func (c *Client) StartTriviaRound(ctx context.Context, sessionID uuid.UUID) (*models.TriviaState, error) {
	return c.triviaCall(ctx, "start-round", c.startTriviaRound, sessionID)
}

func (c *Client) CloseTriviaRound(ctx context.Context, sessionID uuid.UUID) (*models.TriviaState, error) {
	return c.triviaCall(ctx, "close-round", c.closeTriviaRound, sessionID)
}

func (c *Client) SubmitAnswer(ctx context.Context, sessionID uuid.UUID, answer int, correlationID string) (*models.TriviaAnswer, error) {
	resp, err := collapse(c, "answer", sessionID, func() (*apiv1.SubmitAnswerResponse, error) {
		return call(ctx, c.submitAnswer, &apiv1.SubmitAnswerRequest{SessionID: sessionID, Answer: answer, CorrelationID: correlationID})
	})
	if err != nil {
		return nil, err
	}
	return &resp.Answer, nil
}

func (c *Client) CastVote(ctx context.Context, sessionID uuid.UUID, option int, correlationID string) (*models.PollState, error) {
	resp, err := collapse(c, "vote", sessionID, func() (*apiv1.PollStateResponse, error) {
		return call(ctx, c.castVote, &apiv1.CastVoteRequest{SessionID: sessionID, Option: option, CorrelationID: correlationID})
	})
	if err != nil {
		return nil, err
	}
	return &resp.State, nil
}

func (c *Client) ClosePoll(ctx context.Context, sessionID uuid.UUID) (*models.PollState, error) {
	resp, err := collapse(c, "close-poll", sessionID, func() (*apiv1.PollStateResponse, error) {
		return call(ctx, c.closePoll, &apiv1.SessionRequest{SessionID: sessionID})
	})
	if err != nil {
		return nil, err
	}
	return &resp.State, nil
}

func (c *Client) triviaCall(ctx context.Context, action string, rpc *connect.Client[apiv1.SessionRequest, apiv1.TriviaStateResponse], sessionID uuid.UUID) (*models.TriviaState, error) {
	resp, err := collapse(c, action, sessionID, func() (*apiv1.TriviaStateResponse, error) {
		return call(ctx, rpc, &apiv1.SessionRequest{SessionID: sessionID})
	})
	if err != nil {
		return nil, err
	}
	return &resp.State, nil
}

func sessionCall(ctx context.Context, rpc *connect.Client[apiv1.SessionRequest, apiv1.SessionResponse], id uuid.UUID) (*models.Session, error) {
	resp, err := call(ctx, rpc, &apiv1.SessionRequest{SessionID: id})
	if err != nil {
		return nil, err
	}
	return &resp.Session, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
