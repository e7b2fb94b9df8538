package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// GameKind defines which mini-game a session runs.
type GameKind string

const (
	GameKindBuzzer     GameKind = "buzzer"
	GameKindTrivia     GameKind = "trivia"
	GameKindSpinBottle GameKind = "spin_bottle"
	GameKindPoll       GameKind = "poll"
)

// Valid reports whether k is one of the known game kinds.
func (k GameKind) Valid() bool {
	switch k {
	case GameKindBuzzer, GameKindTrivia, GameKindSpinBottle, GameKindPoll:
		return true
	default:
		return false
	}
}

// SessionStatus defines where a session sits in its lifecycle.
type SessionStatus string

const (
	SessionStatusWaiting  SessionStatus = "waiting" // awaiting players
	SessionStatusReady    SessionStatus = "ready"
	SessionStatusActive   SessionStatus = "active"
	SessionStatusFinished SessionStatus = "finished"
)

// DefaultMinPlayers is used when a session is created without a minimum.
const DefaultMinPlayers = 2

// Session represents one instance of a mini-game.
type Session struct {
	ID               uuid.UUID       `json:"id"`
	Name             string          `json:"name"`
	Kind             GameKind        `json:"type"`
	CreatedBy        uuid.UUID       `json:"created_by"`
	IsActive         bool            `json:"is_active"`
	SessionActive    bool            `json:"session_active"`
	SessionStatus    SessionStatus   `json:"session_status"`
	SessionStartedAt *time.Time      `json:"session_started_at,omitempty"`
	SessionEndedAt   *time.Time      `json:"session_ended_at,omitempty"`
	MinPlayers       int             `json:"min_players"`
	MaxPlayers       *int            `json:"max_players,omitempty"`
	CurrentPlayers   int             `json:"current_players"`
	State            json.RawMessage `json:"state"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// IsFull reports whether the session has reached its participant cap.
func (s *Session) IsFull() bool {
	return s.MaxPlayers != nil && s.CurrentPlayers >= *s.MaxPlayers
}

// InLobby reports whether the session is waiting for, or has, enough players but is not running.
func (s *Session) InLobby() bool {
	return s.SessionStatus == SessionStatusWaiting || s.SessionStatus == SessionStatusReady
}

// LobbyStatus derives the lobby status for a given participant count.
func LobbyStatus(currentPlayers, minPlayers int) SessionStatus {
	if currentPlayers >= minPlayers {
		return SessionStatusReady
	}
	return SessionStatusWaiting
}

// CanBeManagedBy reports whether actor may run lifecycle operations on the session.
// The creator may always manage their own session; admins may manage any.
func (s *Session) CanBeManagedBy(actor *Actor) bool {
	if actor == nil {
		return false
	}
	return actor.IsAdmin() || actor.ID == s.CreatedBy
}

// Public returns a copy of the session with its state redacted for players.
func (s Session) Public() (Session, error) {
	state, err := PublicState(s.Kind, s.State)
	if err != nil {
		return Session{}, err
	}
	s.State = state
	return s, nil
}

// PublicSessions redacts every session in the list.
func PublicSessions(sessions []Session) ([]Session, error) {
	out := make([]Session, len(sessions))
	for i, s := range sessions {
		p, err := s.Public()
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}
