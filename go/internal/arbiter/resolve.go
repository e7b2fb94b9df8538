package arbiter

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/google/uuid"
	"github.com/mcdev12/breakroom/go/internal/gameerr"
	"github.com/mcdev12/breakroom/go/internal/models"
)

// Trivia scoring constants.
const (
	AnswerWindowSec  = 30
	BasePoints       = 100
	SpeedBonusPerSec = 2
	fullCircle       = 360
)

// IndexSource draws uniform integers in [0, n).
type IndexSource interface {
	IntN(n int) int
}

// globalSource draws from math/rand/v2's goroutine-safe top-level generator.
type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// RankPresses orders presses by server timestamp. Equal timestamps keep arrival order.
// Ranks start at 1; the input is not modified.
func RankPresses(presses []models.BuzzerPress) []models.BuzzerPress {
	ranked := slices.Clone(presses)
	slices.SortStableFunc(ranked, func(a, b models.BuzzerPress) int {
		return a.Position - b.Position
	})
	slices.SortStableFunc(ranked, func(a, b models.BuzzerPress) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// SelectTarget picks one participant uniformly with a single draw from src.
func SelectTarget(participants []uuid.UUID, src IndexSource) (uuid.UUID, error) {
	if len(participants) < 2 {
		return uuid.Nil, fmt.Errorf("%w: have %d", gameerr.ErrInsufficientPlayers, len(participants))
	}
	return participants[src.IntN(len(participants))], nil
}

// SpinAngle draws the cosmetic bottle angle. It never influences the selected target.
func SpinAngle(src IndexSource) int {
	return src.IntN(fullCircle)
}

// ScoreAnswer awards BasePoints plus a speed bonus for a correct answer.
// timeTakenSec is clamped to [0, AnswerWindowSec]; incorrect answers score 0.
func ScoreAnswer(correct bool, timeTakenSec int) int {
	if !correct {
		return 0
	}
	t := min(max(timeTakenSec, 0), AnswerWindowSec)
	return BasePoints + (AnswerWindowSec-t)*SpeedBonusPerSec
}

// RankStandings orders standings by score, highest first. The input must be in join
// order; equal scores keep it, so the earlier joiner ranks higher.
func RankStandings(standings []models.Standing) []models.Standing {
	ranked := slices.Clone(standings)
	slices.SortStableFunc(ranked, func(a, b models.Standing) int {
		return b.Score - a.Score
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}
