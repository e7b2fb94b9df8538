package arbiter

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const workChannelBufferSize = 64

// roundKey identifies one trivia question of one session.
type roundKey struct {
	sessionID uuid.UUID
	question  int
}

type roundTimer struct {
	key   roundKey
	timer clockwork.Timer
	done  chan struct{}
}

// scheduler keeps at most one answer-window timer per session and hands expired rounds
// to the workers through workCh.
type scheduler struct {
	clock  clockwork.Clock
	workCh chan roundKey

	mu     sync.Mutex
	timers map[uuid.UUID]*roundTimer
}

func newScheduler(clock clockwork.Clock) *scheduler {
	return &scheduler{
		clock:  clock,
		workCh: make(chan roundKey, workChannelBufferSize),
		timers: make(map[uuid.UUID]*roundTimer),
	}
}

// schedule arms a timer for key at deadline, replacing any timer the session already has.
// A deadline in the past fires immediately.
func (s *scheduler) schedule(key roundKey, deadline time.Time) {
	d := max(deadline.Sub(s.clock.Now()), 0)
	rt := &roundTimer{
		key:   key,
		timer: s.clock.NewTimer(d),
		done:  make(chan struct{}),
	}
	s.replace(rt)

	go func() {
		select {
		case <-rt.timer.Chan():
			s.remove(rt)
			select {
			case s.workCh <- key:
				log.Debug().
					Str("session_id", key.sessionID.String()).
					Int("question", key.question).
					Msg("answer window expired - enqueued")
			case <-rt.done:
			}
		case <-rt.done:
		}
	}()

	log.Debug().
		Str("session_id", key.sessionID.String()).
		Int("question", key.question).
		Time("deadline", deadline).
		Dur("duration", d).
		Msg("scheduled answer window")
}

func (s *scheduler) replace(rt *roundTimer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[rt.key.sessionID]; ok {
		stopTimer(existing)
	}
	s.timers[rt.key.sessionID] = rt
}

// cancel stops the session's pending timer, if any.
func (s *scheduler) cancel(sessionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rt, ok := s.timers[sessionID]; ok {
		stopTimer(rt)
		delete(s.timers, sessionID)
	}
}

// remove forgets a timer that fired, unless it was already replaced.
func (s *scheduler) remove(rt *roundTimer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timers[rt.key.sessionID] == rt {
		delete(s.timers, rt.key.sessionID)
	}
}

func (s *scheduler) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, rt := range s.timers {
		stopTimer(rt)
		delete(s.timers, id)
	}
}

// pending reports how many sessions have an armed timer.
func (s *scheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// stopTimer stops rt and releases its goroutine. Callers hold s.mu.
func stopTimer(rt *roundTimer) {
	if !rt.timer.Stop() {
		select {
		case <-rt.timer.Chan():
		default:
		}
	}
	close(rt.done)
}
