// Package apiv1 holds the RPC contract shared by the server and the Go client:
// procedure names, request/response messages and the JSON codec.
package apiv1

import (
	"github.com/google/uuid"
	"github.com/mcdev12/breakroom/go/internal/models"
)

const (
	UserServiceName          = "breakroom.v1.UserService"
	SessionServiceName       = "breakroom.v1.SessionService"
	ParticipationServiceName = "breakroom.v1.ParticipationService"
	ArbiterServiceName       = "breakroom.v1.ArbiterService"
	AccountServiceName       = "breakroom.v1.AccountService"
)

const (
	UserServiceGetCurrentUserProcedure = "/" + UserServiceName + "/GetCurrentUser"
	UserServiceUpdateProfileProcedure  = "/" + UserServiceName + "/UpdateProfile"

	SessionServiceListSessionsProcedure         = "/" + SessionServiceName + "/ListSessions"
	SessionServiceListMySessionsProcedure       = "/" + SessionServiceName + "/ListMySessions"
	SessionServiceGetSessionProcedure           = "/" + SessionServiceName + "/GetSession"
	SessionServiceCreateSessionProcedure        = "/" + SessionServiceName + "/CreateSession"
	SessionServiceUpdateSessionProcedure        = "/" + SessionServiceName + "/UpdateSession"
	SessionServiceStartSessionProcedure         = "/" + SessionServiceName + "/StartSession"
	SessionServiceEndSessionProcedure           = "/" + SessionServiceName + "/EndSession"
	SessionServiceEndAllActiveSessionsProcedure = "/" + SessionServiceName + "/EndAllActiveSessions"
	SessionServiceFinishSessionProcedure        = "/" + SessionServiceName + "/FinishSession"
	SessionServiceDeleteSessionProcedure        = "/" + SessionServiceName + "/DeleteSession"

	ParticipationServiceJoinSessionProcedure       = "/" + ParticipationServiceName + "/JoinSession"
	ParticipationServiceLeaveSessionProcedure      = "/" + ParticipationServiceName + "/LeaveSession"
	ParticipationServiceRemoveParticipantProcedure = "/" + ParticipationServiceName + "/RemoveParticipant"
	ParticipationServiceListParticipantsProcedure  = "/" + ParticipationServiceName + "/ListParticipants"

	ArbiterServicePressBuzzerProcedure      = "/" + ArbiterServiceName + "/PressBuzzer"
	ArbiterServiceResetBuzzerProcedure      = "/" + ArbiterServiceName + "/ResetBuzzer"
	ArbiterServiceSpinBottleProcedure       = "/" + ArbiterServiceName + "/SpinBottle"
	ArbiterServiceStartTriviaRoundProcedure = "/" + ArbiterServiceName + "/StartTriviaRound"
	ArbiterServiceSubmitAnswerProcedure     = "/" + ArbiterServiceName + "/SubmitAnswer"
	ArbiterServiceCloseTriviaRoundProcedure = "/" + ArbiterServiceName + "/CloseTriviaRound"
	ArbiterServiceCastVoteProcedure         = "/" + ArbiterServiceName + "/CastVote"
	ArbiterServiceClosePollProcedure        = "/" + ArbiterServiceName + "/ClosePoll"

	AccountServiceRegisterProcedure       = "/" + AccountServiceName + "/Register"
	AccountServiceSignInProcedure         = "/" + AccountServiceName + "/SignIn"
	AccountServiceRefreshProcedure        = "/" + AccountServiceName + "/Refresh"
	AccountServiceSignOutProcedure        = "/" + AccountServiceName + "/SignOut"
	AccountServiceChangePasswordProcedure = "/" + AccountServiceName + "/ChangePassword"
)

// PublicProcedures are callable without an access token.
var PublicProcedures = []string{
	AccountServiceRegisterProcedure,
	AccountServiceSignInProcedure,
	AccountServiceRefreshProcedure,
	AccountServiceSignOutProcedure,
}

// UserService

type GetCurrentUserRequest struct{}

type GetCurrentUserResponse struct {
	User        models.Actor           `json:"user"`
	Permissions models.RolePermissions `json:"permissions"`
}

type UpdateProfileRequest struct {
	FullName   *string `json:"full_name,omitempty"`
	AvatarURL  *string `json:"avatar_url,omitempty"`
	Department *string `json:"department,omitempty"`
}

type UpdateProfileResponse struct {
	User models.Actor `json:"user"`
}

// SessionService

type ListSessionsRequest struct{}

type ListSessionsResponse struct {
	Sessions []models.Session `json:"sessions"`
}

type ListMySessionsRequest struct{}

type SessionRequest struct {
	SessionID uuid.UUID `json:"session_id"`
}

type SessionResponse struct {
	Session models.Session `json:"session"`
}

// PollSeed carries the question and options of a new poll session.
type PollSeed struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

type CreateSessionRequest struct {
	Name       string          `json:"name"`
	Kind       models.GameKind `json:"type"`
	MinPlayers *int            `json:"min_players,omitempty"`
	MaxPlayers *int            `json:"max_players,omitempty"`
	Poll       *PollSeed       `json:"poll,omitempty"`
}

// UpdateSessionRequest edits a session still in the lobby. Nil fields are left unchanged;
// ClearMaxPlayers removes the cap.
type UpdateSessionRequest struct {
	SessionID       uuid.UUID `json:"session_id"`
	Name            *string   `json:"name,omitempty"`
	MinPlayers      *int      `json:"min_players,omitempty"`
	MaxPlayers      *int      `json:"max_players,omitempty"`
	ClearMaxPlayers bool      `json:"clear_max_players,omitempty"`
}

type EndAllActiveSessionsRequest struct{}

type EndAllActiveSessionsResponse struct {
	Result models.BulkResult `json:"result"`
}

type DeleteSessionResponse struct{}

// ParticipationService

type JoinSessionResponse struct {
	Participation models.Participation `json:"participation"`
	Session       models.Session       `json:"session"`
}

type RemoveParticipantRequest struct {
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
}

type ListParticipantsResponse struct {
	Participants []models.Participation `json:"participants"`
}

// ArbiterService

// ActionRequest is a gameplay action. CorrelationID echoes the client's optimistic entry.
type ActionRequest struct {
	SessionID     uuid.UUID `json:"session_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

type PressBuzzerResponse struct {
	Press models.BuzzerPress `json:"press"`
	State models.BuzzerState `json:"state"`
}

type BuzzerStateResponse struct {
	State models.BuzzerState `json:"state"`
}

type SpinBottleResponse struct {
	Result models.SpinResult `json:"result"`
}

type TriviaStateResponse struct {
	State models.TriviaState `json:"state"`
}

type SubmitAnswerRequest struct {
	SessionID     uuid.UUID `json:"session_id"`
	Answer        int       `json:"answer"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

type SubmitAnswerResponse struct {
	Answer models.TriviaAnswer `json:"answer"`
}

type CastVoteRequest struct {
	SessionID     uuid.UUID `json:"session_id"`
	Option        int       `json:"option"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

type PollStateResponse struct {
	State models.PollState `json:"state"`
}

// AccountService

type RegisterRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	FullName *string `json:"full_name,omitempty"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type TokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int          `json:"expires_in"`
	User         models.Actor `json:"user"`
}

type SignOutResponse struct{}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type ChangePasswordResponse struct{}
