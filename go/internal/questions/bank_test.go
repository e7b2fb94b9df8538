package questions

import (
	"math/rand/v2"
	"testing"

	"github.com/mcdev12/breakroom/go/internal/models"
)

func TestDraw(t *testing.T) {
	bank, err := NewBank(Default(), rand.New(rand.NewPCG(1, 2)))
	if err != nil {
		t.Fatalf("NewBank: %v", err)
	}

	got := bank.Draw(3)
	if len(got) != 3 {
		t.Fatalf("Draw(3) returned %d questions", len(got))
	}
	seen := map[string]bool{}
	for _, q := range got {
		if seen[q.ID] {
			t.Errorf("duplicate question %s", q.ID)
		}
		seen[q.ID] = true
	}

	if all := bank.Draw(0); len(all) != bank.Size() {
		t.Errorf("Draw(0) = %d questions, want %d", len(all), bank.Size())
	}
	if all := bank.Draw(99); len(all) != bank.Size() {
		t.Errorf("Draw(99) = %d questions, want %d", len(all), bank.Size())
	}
}

func TestNewBankValidates(t *testing.T) {
	tests := map[string][]models.Question{
		"empty":         nil,
		"no text":       {{ID: "a", Options: []string{"x", "y"}}},
		"one option":    {{ID: "a", Question: "?", Options: []string{"x"}}},
		"bad index":     {{ID: "a", Question: "?", Options: []string{"x", "y"}, CorrectAnswer: 2}},
		"negative idx":  {{ID: "a", Question: "?", Options: []string{"x", "y"}, CorrectAnswer: -1}},
	}
	for name, qs := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := NewBank(qs, nil); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
