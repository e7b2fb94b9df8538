package sessions

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/mcdev12/breakroom/go/internal/models"
)

// CreateSessionRequest represents the data needed to create a new session
type CreateSessionRequest struct {
	Name         string          `json:"name"`
	Kind         models.GameKind `json:"type"`
	MinPlayers   *int            `json:"min_players,omitempty"`
	MaxPlayers   *int            `json:"max_players,omitempty"`
	PollQuestion string          `json:"poll_question,omitempty"`
	PollOptions  []string        `json:"poll_options,omitempty"`
}

// UpdateSessionRequest represents the lobby settings that can be changed
type UpdateSessionRequest struct {
	Name            *string `json:"name,omitempty"`
	MinPlayers      *int    `json:"min_players,omitempty"`
	MaxPlayers      *int    `json:"max_players,omitempty"`
	ClearMaxPlayers bool    `json:"clear_max_players,omitempty"`
}

// NewSession is a validated row ready for insert.
type NewSession struct {
	Name       string
	Kind       models.GameKind
	CreatedBy  uuid.UUID
	MinPlayers int
	MaxPlayers *int
	State      json.RawMessage
}

// Mutation edits a locked session in place. Returning an error rolls the transaction back.
type Mutation func(s *models.Session) error

// Config holds the game defaults applied when sessions are created or started.
type Config struct {
	DefaultMinPlayers int
	QuestionsPerGame  int
	TriviaWindowSec   int
}

// DefaultConfig returns the built-in game defaults.
func DefaultConfig() Config {
	return Config{
		DefaultMinPlayers: models.DefaultMinPlayers,
		QuestionsPerGame:  5,
		TriviaWindowSec:   30,
	}
}
