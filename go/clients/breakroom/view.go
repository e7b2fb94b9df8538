package breakroom

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/breakroom/go/internal/models"
)

// Phase is the coarse presentation phase of a game.
type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhaseActive   Phase = "active"
	PhaseResult   Phase = "result"
	PhaseFinished Phase = "finished"
)

// EventKind names the gameplay action an Event shows.
type EventKind string

const (
	EventPress  EventKind = "press"
	EventSpin   EventKind = "spin"
	EventAnswer EventKind = "answer"
	EventVote   EventKind = "vote"
)

// Event is one gameplay action as a UI shows it. Pending events are optimistic entries
// the server has not confirmed yet.
type Event struct {
	ActorID       uuid.UUID `json:"actor_id"`
	Timestamp     time.Time `json:"timestamp"`
	Rank          int       `json:"rank,omitempty"`
	Kind          EventKind `json:"kind"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Pending       bool      `json:"pending,omitempty"`
}

// GameView is the presentation state of a session, rebuilt from the authoritative row on
// every reconciliation.
type GameView struct {
	SessionID uuid.UUID       `json:"session_id"`
	Kind      models.GameKind `json:"kind"`
	Phase     Phase           `json:"phase"`
	Round     int             `json:"round"`
	Events    []Event         `json:"events"`
}

// BuildView derives the view from a session row. Nothing is carried over from earlier views.
func BuildView(s *models.Session) (GameView, error) {
	v := GameView{SessionID: s.ID, Kind: s.Kind, Events: []Event{}}

	var round models.RoundStatus
	switch s.Kind {
	case models.GameKindBuzzer:
		var st models.BuzzerState
		if err := models.DecodeState(s.State, &st); err != nil {
			return GameView{}, fmt.Errorf("failed to decode buzzer state: %w", err)
		}
		round, v.Round = st.Status, st.Round
		for _, p := range st.Presses {
			v.Events = append(v.Events, Event{ActorID: p.UserID, Timestamp: p.Timestamp, Rank: p.Rank, Kind: EventPress, CorrelationID: p.CorrelationID})
		}
		sort.SliceStable(v.Events, func(i, j int) bool { return v.Events[i].Rank < v.Events[j].Rank })

	case models.GameKindSpinBottle:
		var st models.SpinState
		if err := models.DecodeState(s.State, &st); err != nil {
			return GameView{}, fmt.Errorf("failed to decode spin state: %w", err)
		}
		round, v.Round = st.Status, st.Spins
		if st.LastSpin != nil {
			v.Events = append(v.Events, Event{ActorID: st.LastSpin.SelectedUserID, Timestamp: st.LastSpin.Timestamp, Kind: EventSpin, CorrelationID: st.LastSpin.CorrelationID})
		}

	case models.GameKindTrivia:
		var st models.TriviaState
		if err := models.DecodeState(s.State, &st); err != nil {
			return GameView{}, fmt.Errorf("failed to decode trivia state: %w", err)
		}
		round = st.Status
		if st.Status != models.RoundStatusWaiting {
			v.Round = st.CurrentQuestion + 1
		}
		for _, a := range st.Answers {
			v.Events = append(v.Events, Event{ActorID: a.UserID, Kind: EventAnswer, CorrelationID: a.CorrelationID})
		}

	case models.GameKindPoll:
		var st models.PollState
		if err := models.DecodeState(s.State, &st); err != nil {
			return GameView{}, fmt.Errorf("failed to decode poll state: %w", err)
		}
		round, v.Round = st.Status, 1
		if st.Closed {
			round = models.RoundStatusResults
		}
		for _, vote := range st.Votes {
			v.Events = append(v.Events, Event{ActorID: vote.UserID, Kind: EventVote, CorrelationID: vote.CorrelationID})
		}

	default:
		return GameView{}, fmt.Errorf("unknown game kind %q", s.Kind)
	}

	v.Phase = phase(s, round)
	return v, nil
}

func phase(s *models.Session, round models.RoundStatus) Phase {
	switch {
	case s.SessionStatus == models.SessionStatusFinished || round == models.RoundStatusFinished:
		return PhaseFinished
	case !s.SessionActive:
		return PhaseWaiting
	case round == models.RoundStatusResults:
		return PhaseResult
	default:
		return PhaseActive
	}
}

// Overlay holds optimistic events keyed by correlation id until the server confirms them
// or the action fails.
type Overlay struct {
	mu      sync.Mutex
	pending map[string]Event
}

func NewOverlay() *Overlay {
	return &Overlay{pending: make(map[string]Event)}
}

// Add records an optimistic event and returns its correlation id, generating one if unset.
func (o *Overlay) Add(e Event) string {
	if e.CorrelationID == "" {
		e.CorrelationID = uuid.NewString()
	}
	e.Pending = true
	o.mu.Lock()
	o.pending[e.CorrelationID] = e
	o.mu.Unlock()
	return e.CorrelationID
}

// Drop removes an entry, typically because its action was rejected.
func (o *Overlay) Drop(correlationID string) {
	o.mu.Lock()
	delete(o.pending, correlationID)
	o.mu.Unlock()
}

// Len is the number of unconfirmed entries.
func (o *Overlay) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Merge returns v with still-pending entries appended. Entries whose correlation id now
// appears in v are confirmed and forgotten.
func (o *Overlay) Merge(v GameView) GameView {
	o.mu.Lock()
	defer o.mu.Unlock()

	confirmed := make(map[string]bool, len(v.Events))
	for _, e := range v.Events {
		if e.CorrelationID != "" {
			confirmed[e.CorrelationID] = true
		}
	}

	out := v
	out.Events = append([]Event(nil), v.Events...)
	var extra []Event
	for id, e := range o.pending {
		if confirmed[id] {
			delete(o.pending, id)
			continue
		}
		extra = append(extra, e)
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i].Timestamp.Before(extra[j].Timestamp) })
	out.Events = append(out.Events, extra...)
	return out
}
