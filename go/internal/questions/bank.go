package questions

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/mcdev12/breakroom/go/internal/models"
)

// Bank is the pool trivia sessions draw their questions from.
type Bank struct {
	mu        sync.Mutex
	questions []models.Question
	rng       *rand.Rand
}

// NewBank validates the questions and returns a bank. A nil rng uses a random seed.
func NewBank(qs []models.Question, rng *rand.Rand) (*Bank, error) {
	if len(qs) == 0 {
		return nil, fmt.Errorf("question bank is empty")
	}
	for i, q := range qs {
		if err := Validate(q); err != nil {
			return nil, fmt.Errorf("question %d (%s): %w", i, q.ID, err)
		}
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Bank{questions: qs, rng: rng}, nil
}

// Validate checks that a question has options and a correct index inside them.
func Validate(q models.Question) error {
	if q.Question == "" {
		return fmt.Errorf("question text is required")
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("at least two options are required")
	}
	if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
		return fmt.Errorf("correct_answer %d out of range", q.CorrectAnswer)
	}
	return nil
}

// Draw returns n distinct questions in random order; n <= 0 or n > size returns the whole bank shuffled.
func (b *Bank) Draw(n int) []models.Question {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.Question, len(b.questions))
	copy(out, b.questions)
	b.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })

	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

func (b *Bank) Size() int {
	return len(b.questions)
}

// Default is the built-in question set.
func Default() []models.Question {
	return []models.Question{
		{ID: "1", Question: "What is the capital of France?", Options: []string{"London", "Berlin", "Paris", "Madrid"}, CorrectAnswer: 2, Difficulty: "easy", Category: "Geography"},
		{ID: "2", Question: "Which planet is known as the Red Planet?", Options: []string{"Venus", "Mars", "Jupiter", "Saturn"}, CorrectAnswer: 1, Difficulty: "easy", Category: "Science"},
		{ID: "3", Question: "Who painted the Mona Lisa?", Options: []string{"Vincent van Gogh", "Pablo Picasso", "Leonardo da Vinci", "Michelangelo"}, CorrectAnswer: 2, Difficulty: "medium", Category: "Art"},
		{ID: "4", Question: "What is the largest mammal in the world?", Options: []string{"African Elephant", "Blue Whale", "Giraffe", "Polar Bear"}, CorrectAnswer: 1, Difficulty: "easy", Category: "Nature"},
		{ID: "5", Question: "In which year did the Berlin Wall fall?", Options: []string{"1987", "1988", "1989", "1990"}, CorrectAnswer: 2, Difficulty: "hard", Category: "History"},
	}
}
