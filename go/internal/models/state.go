package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RoundStatus is the phase of the current round inside a session's state blob.
type RoundStatus string

const (
	RoundStatusWaiting  RoundStatus = "waiting"
	RoundStatusQuestion RoundStatus = "question"
	RoundStatusResults  RoundStatus = "results"
	RoundStatusFinished RoundStatus = "finished"
)

// BuzzerPress is one participant pressing the buzzer.
// Position is the arrival order assigned by the arbiter; Rank is derived from Timestamp.
type BuzzerPress struct {
	UserID        uuid.UUID `json:"user_id"`
	Timestamp     time.Time `json:"timestamp"`
	Position      int       `json:"position"`
	Rank          int       `json:"rank"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// BuzzerState is the state blob of a buzzer session.
type BuzzerState struct {
	Status   RoundStatus   `json:"status"`
	Round    int           `json:"round"`
	Presses  []BuzzerPress `json:"buzzers"`
	WinnerID *uuid.UUID    `json:"winner_id,omitempty"`
}

// SpinResult is the outcome of one bottle spin. Angle is cosmetic.
type SpinResult struct {
	SelectedUserID uuid.UUID `json:"selected_player"`
	Angle          int       `json:"angle"`
	Timestamp      time.Time `json:"timestamp"`
	CorrelationID  string    `json:"correlation_id,omitempty"`
}

// SpinState is the state blob of a spin-the-bottle session.
type SpinState struct {
	Status   RoundStatus `json:"status"`
	Spins    int         `json:"spins"`
	LastSpin *SpinResult `json:"last_spin,omitempty"`
}

// Question is one trivia question.
type Question struct {
	ID            string   `json:"id" yaml:"id"`
	Question      string   `json:"question" yaml:"question"`
	Options       []string `json:"options" yaml:"options"`
	CorrectAnswer int      `json:"correct_answer" yaml:"correct_answer"`
	Difficulty    string   `json:"difficulty,omitempty" yaml:"difficulty"`
	Category      string   `json:"category,omitempty" yaml:"category"`
}

// TriviaAnswer is one participant's answer to the current question.
// Answer is -1 when the window closed without a submission.
type TriviaAnswer struct {
	UserID        uuid.UUID `json:"user_id"`
	Answer        int       `json:"answer"`
	TimeTakenSec  int       `json:"time_taken"`
	Correct       bool      `json:"is_correct"`
	Points        int       `json:"points"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// Standing is a participant's cumulative trivia result.
type Standing struct {
	UserID         uuid.UUID `json:"user_id"`
	Score          int       `json:"score"`
	CorrectAnswers int       `json:"correct_answers"`
	Rank           int       `json:"rank"`
}

// TriviaState is the state blob of a trivia session.
type TriviaState struct {
	Status          RoundStatus    `json:"status"`
	CurrentQuestion int            `json:"current_question"`
	TotalQuestions  int            `json:"total_questions"`
	Questions       []Question     `json:"questions"`
	WindowSec       int            `json:"window_sec"`
	RoundStartedAt  *time.Time     `json:"round_started_at,omitempty"`
	RoundDeadline   *time.Time     `json:"round_deadline,omitempty"`
	Answers         []TriviaAnswer `json:"current_answers"`
	Standings       []Standing     `json:"participants"`
}

// HiddenAnswer replaces CorrectAnswer on questions players have not seen resolved.
const HiddenAnswer = -1

// Public returns a copy of the state safe to show players: correct answers are hidden
// for the open question and every question after it, and so is the grading of answers
// while the window is open.
func (t TriviaState) Public() TriviaState {
	revealed := t.CurrentQuestion
	switch t.Status {
	case RoundStatusWaiting, RoundStatusQuestion:
		revealed = t.CurrentQuestion - 1
	case RoundStatusFinished:
		revealed = len(t.Questions) - 1
	}
	out := t
	out.Questions = make([]Question, len(t.Questions))
	for i, q := range t.Questions {
		if i > revealed {
			q.CorrectAnswer = HiddenAnswer
		}
		out.Questions[i] = q
	}
	if t.Status == RoundStatusQuestion {
		out.Answers = make([]TriviaAnswer, len(t.Answers))
		for i, a := range t.Answers {
			a.Correct, a.Points = false, 0
			out.Answers[i] = a
		}
	}
	return out
}

// PublicState redacts a session state blob for players. Only trivia state carries
// anything hidden; other kinds are returned as is.
func PublicState(kind GameKind, raw json.RawMessage) (json.RawMessage, error) {
	if kind != GameKindTrivia || len(raw) == 0 || string(raw) == "null" {
		return raw, nil
	}
	var state TriviaState
	if err := DecodeState(raw, &state); err != nil {
		return nil, err
	}
	return EncodeState(state.Public())
}

// PollVote is one participant's vote.
type PollVote struct {
	UserID        uuid.UUID `json:"user_id"`
	Option        int       `json:"option"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// PollState is the state blob of a poll session.
type PollState struct {
	Status   RoundStatus `json:"status"`
	Question string      `json:"question"`
	Options  []string    `json:"options"`
	Votes    []PollVote  `json:"votes"`
	Tally    []int       `json:"tally"`
	Closed   bool        `json:"closed"`
}

// DecodeState unmarshals a session state blob into dst. An empty blob leaves dst untouched.
func DecodeState(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to decode session state: %w", err)
	}
	return nil
}

// EncodeState marshals a state struct into a session state blob.
func EncodeState(src interface{}) (json.RawMessage, error) {
	b, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session state: %w", err)
	}
	return b, nil
}

// InitialState builds the waiting-room state blob for a newly created or reset session.
// Trivia sessions take the given question set; polls keep their question and options from seed.
func InitialState(kind GameKind, questions []Question, windowSec int, seed json.RawMessage) (json.RawMessage, error) {
	switch kind {
	case GameKindBuzzer:
		return EncodeState(BuzzerState{Status: RoundStatusWaiting, Presses: []BuzzerPress{}})
	case GameKindSpinBottle:
		return EncodeState(SpinState{Status: RoundStatusWaiting})
	case GameKindTrivia:
		return EncodeState(TriviaState{
			Status:         RoundStatusWaiting,
			TotalQuestions: len(questions),
			Questions:      questions,
			WindowSec:      windowSec,
			Answers:        []TriviaAnswer{},
			Standings:      []Standing{},
		})
	case GameKindPoll:
		var poll PollState
		if err := DecodeState(seed, &poll); err != nil {
			return nil, err
		}
		poll.Status = RoundStatusWaiting
		poll.Votes = []PollVote{}
		poll.Tally = make([]int, len(poll.Options))
		poll.Closed = false
		return EncodeState(poll)
	default:
		return nil, fmt.Errorf("unknown game kind: %s", kind)
	}
}
