package arbiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/breakroom/go/internal/auth"
	"github.com/mcdev12/breakroom/go/internal/gameerr"
	"github.com/mcdev12/breakroom/go/internal/guard"
	"github.com/mcdev12/breakroom/go/internal/metrics"
	"github.com/mcdev12/breakroom/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ArbiterRepository defines what the app layer needs from the repository
type ArbiterRepository interface {
	Resolve(ctx context.Context, id uuid.UUID, fn Resolution) (*models.Session, error)
	ListOpenRounds(ctx context.Context) ([]OpenRound, error)
}

// InFlightGuard collapses concurrent duplicates of the same request.
type InFlightGuard interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// PressResult is the caller's ranked press and the round it landed in.
type PressResult struct {
	Press models.BuzzerPress
	State models.BuzzerState
}

// App is the single authority for gameplay outcomes. Every action runs under the session
// row lock with the server clock and the injected randomness.
type App struct {
	repo  ArbiterRepository
	clock clockwork.Clock
	rng   IndexSource
	guard InFlightGuard
	sched *scheduler
}

// NewApp creates a new arbiter App. A nil rng draws from math/rand/v2; a nil guard disables
// duplicate collapsing.
func NewApp(repo ArbiterRepository, clock clockwork.Clock, rng IndexSource, g InFlightGuard) *App {
	if rng == nil {
		rng = globalSource{}
	}
	if g == nil {
		g = guard.Nop{}
	}
	return &App{
		repo:  repo,
		clock: clock,
		rng:   rng,
		guard: g,
		sched: newScheduler(clock),
	}
}

// Run re-arms timers for trivia rounds left open by a previous process, then closes rounds
// as their windows expire until ctx is cancelled.
func (a *App) Run(ctx context.Context, workers int) error {
	rounds, err := a.repo.ListOpenRounds(ctx)
	if err != nil {
		return fmt.Errorf("failed to recover open rounds: %w", err)
	}
	for _, r := range rounds {
		a.sched.schedule(roundKey{sessionID: r.SessionID, question: r.Question}, r.Deadline)
	}
	log.Info().Int("recovered_rounds", len(rounds)).Int("workers", workers).Msg("arbiter round worker started")

	var wg sync.WaitGroup
	for i := 0; i < max(workers, 1); i++ {
		wg.Add(1)
		go a.worker(ctx, &wg, i)
	}
	<-ctx.Done()
	a.sched.stopAll()
	wg.Wait()
	log.Info().Msg("arbiter round worker stopped")
	return nil
}

func (a *App) worker(ctx context.Context, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case key := <-a.sched.workCh:
			if err := a.expireRound(ctx, key); err != nil {
				log.Error().
					Err(err).
					Str("session_id", key.sessionID.String()).
					Int("question", key.question).
					Int("worker_id", workerID).
					Msg("failed to close expired round")
			}
		}
	}
}

// resolve checks the kind and that the game is running before handing the locked session to fn.
func (a *App) resolve(ctx context.Context, operation string, id uuid.UUID, kind models.GameKind, fn Resolution) (*models.Session, error) {
	s, err := a.repo.Resolve(ctx, id, func(s *models.Session, participants []models.Participation) (Awards, error) {
		if s.Kind != kind {
			return nil, fmt.Errorf("%w: %s is a %s session", gameerr.ErrWrongKind, operation, s.Kind)
		}
		if !s.SessionActive || s.SessionStatus != models.SessionStatusActive {
			return nil, fmt.Errorf("%w: session %s is %s", gameerr.ErrSessionInactive, s.ID, s.SessionStatus)
		}
		return fn(s, participants)
	})
	metrics.RecordResolution(string(kind), operation, err)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", operation, err)
	}
	return s, nil
}

// acquire collapses a duplicate of the same action by the same caller.
func (a *App) acquire(ctx context.Context, action string, sessionID, userID uuid.UUID) (func(), error) {
	release, err := a.guard.Acquire(ctx, guard.Key(action, sessionID, userID))
	if err != nil {
		metrics.RecordDuplicateSubmission(action)
		return nil, err
	}
	return release, nil
}

// PressBuzzer records the caller's press in the current round, stamped by the server clock.
func (a *App) PressBuzzer(ctx context.Context, sessionID uuid.UUID, correlationID string) (*PressResult, error) {
	actor, err := auth.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}
	release, err := a.acquire(ctx, "press", sessionID, actor.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	var result PressResult
	_, err = a.resolve(ctx, "press_buzzer", sessionID, models.GameKindBuzzer, func(s *models.Session, participants []models.Participation) (Awards, error) {
		if err := requireParticipant(participants, actor.ID); err != nil {
			return nil, err
		}
		var state models.BuzzerState
		if err := models.DecodeState(s.State, &state); err != nil {
			return nil, err
		}
		if state.Status != models.RoundStatusWaiting && state.Status != models.RoundStatusQuestion {
			return nil, fmt.Errorf("%w: buzzer round is %s", gameerr.ErrRoundClosed, state.Status)
		}
		for _, p := range state.Presses {
			if p.UserID == actor.ID {
				return nil, fmt.Errorf("%w: round %d", gameerr.ErrAlreadyPressed, state.Round)
			}
		}

		state.Round = max(state.Round, 1)
		state.Status = models.RoundStatusQuestion
		state.Presses = RankPresses(append(state.Presses, models.BuzzerPress{
			UserID:        actor.ID,
			Timestamp:     a.clock.Now().UTC(),
			Position:      len(state.Presses) + 1,
			CorrelationID: correlationID,
		}))
		winner := state.Presses[0].UserID
		state.WinnerID = &winner

		for _, p := range state.Presses {
			if p.UserID == actor.ID {
				result.Press = p
			}
		}
		result.State = state
		return nil, encodeInto(s, state)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", sessionID.String()).
		Str("user_id", actor.ID.String()).
		Int("round", result.State.Round).
		Int("rank", result.Press.Rank).
		Msg("buzzer pressed")
	return &result, nil
}

// ResetBuzzer clears the presses and opens the next round.
func (a *App) ResetBuzzer(ctx context.Context, sessionID uuid.UUID) (*models.BuzzerState, error) {
	actor, err := auth.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}

	var state models.BuzzerState
	_, err = a.resolve(ctx, "reset_buzzer", sessionID, models.GameKindBuzzer, func(s *models.Session, _ []models.Participation) (Awards, error) {
		if err := requireManager(s, actor); err != nil {
			return nil, err
		}
		if err := models.DecodeState(s.State, &state); err != nil {
			return nil, err
		}
		state.Round = max(state.Round, 1) + 1
		state.Status = models.RoundStatusQuestion
		state.Presses = []models.BuzzerPress{}
		state.WinnerID = nil
		return nil, encodeInto(s, state)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("session_id", sessionID.String()).Int("round", state.Round).Msg("buzzer reset")
	return &state, nil
}

// SpinBottle selects one active participant uniformly at random.
func (a *App) SpinBottle(ctx context.Context, sessionID uuid.UUID, correlationID string) (*models.SpinResult, error) {
	actor, err := auth.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%w: only administrators can spin the bottle", gameerr.ErrForbidden)
	}
	release, err := a.acquire(ctx, "spin", sessionID, actor.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	var result models.SpinResult
	_, err = a.resolve(ctx, "spin_bottle", sessionID, models.GameKindSpinBottle, func(s *models.Session, participants []models.Participation) (Awards, error) {
		ids := make([]uuid.UUID, len(participants))
		for i, p := range participants {
			ids[i] = p.UserID
		}
		target, err := SelectTarget(ids, a.rng)
		if err != nil {
			return nil, err
		}

		var state models.SpinState
		if err := models.DecodeState(s.State, &state); err != nil {
			return nil, err
		}
		result = models.SpinResult{
			SelectedUserID: target,
			Angle:          SpinAngle(a.rng),
			Timestamp:      a.clock.Now().UTC(),
			CorrelationID:  correlationID,
		}
		state.Spins++
		state.LastSpin = &result
		state.Status = models.RoundStatusResults
		return nil, encodeInto(s, state)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", sessionID.String()).
		Str("selected_user_id", result.SelectedUserID.String()).
		Msg("bottle spun")
	return &result, nil
}

// StartTriviaRound opens the next question and arms its answer-window timer.
func (a *App) StartTriviaRound(ctx context.Context, sessionID uuid.UUID) (*models.TriviaState, error) {
	actor, err := auth.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}

	var state models.TriviaState
	_, err = a.resolve(ctx, "start_trivia_round", sessionID, models.GameKindTrivia, func(s *models.Session, participants []models.Participation) (Awards, error) {
		if err := requireManager(s, actor); err != nil {
			return nil, err
		}
		if err := models.DecodeState(s.State, &state); err != nil {
			return nil, err
		}

		switch state.Status {
		case models.RoundStatusWaiting:
			state.CurrentQuestion = 0
		case models.RoundStatusResults:
			state.CurrentQuestion++
		default:
			return nil, fmt.Errorf("%w: cannot start a round while trivia is %s", gameerr.ErrInvalidTransition, state.Status)
		}
		if state.CurrentQuestion >= len(state.Questions) {
			return nil, fmt.Errorf("%w: no question %d", gameerr.ErrInvalidTransition, state.CurrentQuestion)
		}

		now := a.clock.Now().UTC()
		deadline := now.Add(time.Duration(windowSec(state)) * time.Second)
		state.Status = models.RoundStatusQuestion
		state.RoundStartedAt = &now
		state.RoundDeadline = &deadline
		state.Answers = []models.TriviaAnswer{}
		state.Standings = seedStandings(state.Standings, participants)
		return nil, encodeInto(s, state)
	})
	if err != nil {
		return nil, err
	}

	a.sched.schedule(roundKey{sessionID: sessionID, question: state.CurrentQuestion}, *state.RoundDeadline)
	log.Info().
		Str("session_id", sessionID.String()).
		Int("question", state.CurrentQuestion).
		Time("deadline", *state.RoundDeadline).
		Msg("trivia round started")

	public := state.Public()
	return &public, nil
}

// SubmitAnswer grades the caller's answer to the open question. Time taken comes from the server clock.
func (a *App) SubmitAnswer(ctx context.Context, sessionID uuid.UUID, answer int, correlationID string) (*models.TriviaAnswer, error) {
	actor, err := auth.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}
	release, err := a.acquire(ctx, "answer", sessionID, actor.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	var result models.TriviaAnswer
	_, err = a.resolve(ctx, "submit_answer", sessionID, models.GameKindTrivia, func(s *models.Session, participants []models.Participation) (Awards, error) {
		if err := requireParticipant(participants, actor.ID); err != nil {
			return nil, err
		}
		var state models.TriviaState
		if err := models.DecodeState(s.State, &state); err != nil {
			return nil, err
		}
		now := a.clock.Now().UTC()
		if state.Status != models.RoundStatusQuestion || state.RoundDeadline == nil || !now.Before(*state.RoundDeadline) {
			return nil, fmt.Errorf("%w: question %d is not accepting answers", gameerr.ErrRoundClosed, state.CurrentQuestion)
		}
		for _, ans := range state.Answers {
			if ans.UserID == actor.ID {
				return nil, fmt.Errorf("%w: question %d", gameerr.ErrAlreadyAnswered, state.CurrentQuestion)
			}
		}
		q := state.Questions[state.CurrentQuestion]
		if answer < 0 || answer >= len(q.Options) {
			return nil, fmt.Errorf("%w: answer %d is not one of %d options", gameerr.ErrInvalidArgument, answer, len(q.Options))
		}

		taken := int(now.Sub(*state.RoundStartedAt) / time.Second)
		correct := answer == q.CorrectAnswer
		result = models.TriviaAnswer{
			UserID:        actor.ID,
			Answer:        answer,
			TimeTakenSec:  taken,
			Correct:       correct,
			Points:        ScoreAnswer(correct, taken),
			CorrelationID: correlationID,
		}
		state.Answers = append(state.Answers, result)
		return nil, encodeInto(s, state)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("session_id", sessionID.String()).
		Str("user_id", actor.ID.String()).
		Int("time_taken", result.TimeTakenSec).
		Msg("answer submitted")
	return &result, nil
}

// CloseTriviaRound closes the open question before its deadline.
func (a *App) CloseTriviaRound(ctx context.Context, sessionID uuid.UUID) (*models.TriviaState, error) {
	actor, err := auth.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}

	var state models.TriviaState
	_, err = a.resolve(ctx, "close_trivia_round", sessionID, models.GameKindTrivia, func(s *models.Session, participants []models.Participation) (Awards, error) {
		if err := requireManager(s, actor); err != nil {
			return nil, err
		}
		if err := models.DecodeState(s.State, &state); err != nil {
			return nil, err
		}
		if state.Status != models.RoundStatusQuestion {
			return nil, fmt.Errorf("%w: trivia is %s", gameerr.ErrRoundClosed, state.Status)
		}
		return a.closeRound(s, &state, participants)
	})
	if err != nil {
		return nil, err
	}
	a.sched.cancel(sessionID)

	public := state.Public()
	return &public, nil
}

// expireRound closes a round whose window ran out. It does nothing if the round was
// already closed or the game moved on.
func (a *App) expireRound(ctx context.Context, key roundKey) error {
	var closed bool
	_, err := a.repo.Resolve(ctx, key.sessionID, func(s *models.Session, participants []models.Participation) (Awards, error) {
		if s.Kind != models.GameKindTrivia || !s.SessionActive {
			return nil, errUnchanged
		}
		var state models.TriviaState
		if err := models.DecodeState(s.State, &state); err != nil {
			return nil, err
		}
		if state.Status != models.RoundStatusQuestion || state.CurrentQuestion != key.question {
			return nil, errUnchanged
		}
		closed = true
		return a.closeRound(s, &state, participants)
	})
	if errors.Is(err, gameerr.ErrNotFound) {
		return nil
	}
	metrics.RecordResolution(string(models.GameKindTrivia), "expire_round", err)
	if err != nil {
		return err
	}
	if closed {
		log.Info().
			Str("session_id", key.sessionID.String()).
			Int("question", key.question).
			Msg("trivia round expired")
	}
	return nil
}

// closeRound grades every active participant, unanswered ones as wrong after the full window,
// and moves the game to results. After the last question the session finishes.
func (a *App) closeRound(s *models.Session, state *models.TriviaState, participants []models.Participation) (Awards, error) {
	answered := make(map[uuid.UUID]bool, len(state.Answers))
	for _, ans := range state.Answers {
		answered[ans.UserID] = true
	}
	for _, p := range participants {
		if !answered[p.UserID] {
			state.Answers = append(state.Answers, models.TriviaAnswer{
				UserID:       p.UserID,
				Answer:       models.HiddenAnswer,
				TimeTakenSec: AnswerWindowSec,
				Points:       ScoreAnswer(false, AnswerWindowSec),
			})
		}
	}

	active := make(map[uuid.UUID]bool, len(participants))
	for _, p := range participants {
		active[p.UserID] = true
	}
	awards := Awards{}
	standings := seedStandings(state.Standings, participants)
	byUser := make(map[uuid.UUID]*models.Standing, len(standings))
	for i := range standings {
		byUser[standings[i].UserID] = &standings[i]
	}
	for _, ans := range state.Answers {
		if !active[ans.UserID] {
			continue
		}
		awards[ans.UserID] += ans.Points
		st := byUser[ans.UserID]
		st.Score += ans.Points
		if ans.Correct {
			st.CorrectAnswers++
		}
	}
	state.Standings = RankStandings(standings)
	state.Status = models.RoundStatusResults

	if state.CurrentQuestion >= len(state.Questions)-1 {
		now := a.clock.Now().UTC()
		state.Status = models.RoundStatusFinished
		s.SessionStatus = models.SessionStatusFinished
		s.SessionActive = false
		s.SessionEndedAt = &now
	}
	return awards, encodeInto(s, *state)
}

// CastVote records the caller's single vote in an open poll.
func (a *App) CastVote(ctx context.Context, sessionID uuid.UUID, option int, correlationID string) (*models.PollState, error) {
	actor, err := auth.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}
	release, err := a.acquire(ctx, "vote", sessionID, actor.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	var state models.PollState
	_, err = a.resolve(ctx, "cast_vote", sessionID, models.GameKindPoll, func(s *models.Session, participants []models.Participation) (Awards, error) {
		if err := requireParticipant(participants, actor.ID); err != nil {
			return nil, err
		}
		if err := models.DecodeState(s.State, &state); err != nil {
			return nil, err
		}
		if state.Closed {
			return nil, fmt.Errorf("%w: poll is closed", gameerr.ErrRoundClosed)
		}
		for _, v := range state.Votes {
			if v.UserID == actor.ID {
				return nil, fmt.Errorf("%w: already voted", gameerr.ErrAlreadyAnswered)
			}
		}
		if option < 0 || option >= len(state.Options) {
			return nil, fmt.Errorf("%w: option %d is not one of %d", gameerr.ErrInvalidArgument, option, len(state.Options))
		}
		if len(state.Tally) != len(state.Options) {
			repairTally(sessionID, &state)
		}
		state.Votes = append(state.Votes, models.PollVote{UserID: actor.ID, Option: option, CorrelationID: correlationID})
		state.Tally[option]++
		state.Status = models.RoundStatusQuestion
		return nil, encodeInto(s, state)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("session_id", sessionID.String()).Str("user_id", actor.ID.String()).Msg("vote cast")
	return &state, nil
}

// repairTally recounts the tally from the stored votes. Votes for options that no
// longer exist are left out of the count.
func repairTally(sessionID uuid.UUID, state *models.PollState) {
	state.Tally = make([]int, len(state.Options))
	for _, v := range state.Votes {
		if v.Option < 0 || v.Option >= len(state.Options) {
			log.Warn().
				Str("session_id", sessionID.String()).
				Str("user_id", v.UserID.String()).
				Int("option", v.Option).
				Msg("skipping stored vote for an unknown option")
			continue
		}
		state.Tally[v.Option]++
	}
}

// ClosePoll freezes the tally.
func (a *App) ClosePoll(ctx context.Context, sessionID uuid.UUID) (*models.PollState, error) {
	actor, err := auth.ActorFrom(ctx)
	if err != nil {
		return nil, err
	}

	var state models.PollState
	_, err = a.resolve(ctx, "close_poll", sessionID, models.GameKindPoll, func(s *models.Session, _ []models.Participation) (Awards, error) {
		if err := requireManager(s, actor); err != nil {
			return nil, err
		}
		if err := models.DecodeState(s.State, &state); err != nil {
			return nil, err
		}
		if state.Closed {
			return nil, fmt.Errorf("%w: poll is already closed", gameerr.ErrRoundClosed)
		}
		state.Closed = true
		state.Status = models.RoundStatusResults
		return nil, encodeInto(s, state)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("session_id", sessionID.String()).Ints("tally", state.Tally).Msg("poll closed")
	return &state, nil
}

func requireParticipant(participants []models.Participation, userID uuid.UUID) error {
	for _, p := range participants {
		if p.UserID == userID {
			return nil
		}
	}
	return gameerr.ErrNotParticipant
}

func requireManager(s *models.Session, actor *models.Actor) error {
	if !s.CanBeManagedBy(actor) {
		return fmt.Errorf("%w: only the creator or an administrator can run this game", gameerr.ErrForbidden)
	}
	return nil
}

// seedStandings returns the board in join order, adding a zero standing for every participant
// not yet on it. Players who left keep their standing after the active ones.
func seedStandings(standings []models.Standing, participants []models.Participation) []models.Standing {
	byUser := make(map[uuid.UUID]models.Standing, len(standings))
	for _, st := range standings {
		byUser[st.UserID] = st
	}
	out := make([]models.Standing, 0, len(participants)+len(standings))
	for _, p := range participants {
		st, ok := byUser[p.UserID]
		if !ok {
			st = models.Standing{UserID: p.UserID}
		}
		out = append(out, st)
		delete(byUser, p.UserID)
	}
	for _, st := range standings {
		if _, left := byUser[st.UserID]; left {
			out = append(out, st)
		}
	}
	return out
}

func windowSec(state models.TriviaState) int {
	if state.WindowSec <= 0 || state.WindowSec > AnswerWindowSec {
		return AnswerWindowSec
	}
	return state.WindowSec
}

func encodeInto(s *models.Session, state any) error {
	raw, err := models.EncodeState(state)
	if err != nil {
		return err
	}
	s.State = raw
	return nil
}
