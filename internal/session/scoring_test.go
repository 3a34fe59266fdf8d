package session

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/proctorhq/examhall-backend/internal/model"
)

func mcq(t *testing.T, correct string, marks int) model.Question {
	t.Helper()
	return model.Question{
		ID:   uuid.New(),
		Text: "q",
		Options: []model.Option{
			{ID: "a", Text: "A"},
			{ID: "b", Text: "B"},
			{ID: "c", Text: "C"},
			{ID: "d", Text: "D"},
		},
		CorrectOptionID: correct,
		Marks:           marks,
	}
}

func TestScore(t *testing.T) {
	q1 := mcq(t, "b", 5)
	q2 := mcq(t, "c", 3)
	questions := []model.Question{q1, q2}

	tests := []struct {
		name    string
		answers map[string]string
		want    int
	}{
		{name: "all correct", answers: map[string]string{q1.ID.String(): "b", q2.ID.String(): "c"}, want: 8},
		{name: "one correct one wrong", answers: map[string]string{q1.ID.String(): "b", q2.ID.String(): "a"}, want: 5},
		{name: "all wrong", answers: map[string]string{q1.ID.String(): "a", q2.ID.String(): "b"}, want: 0},
		{name: "unanswered contributes zero", answers: map[string]string{q1.ID.String(): "b"}, want: 5},
		{name: "empty answer map", answers: map[string]string{}, want: 0},
		{name: "nil answer map", answers: nil, want: 0},
		{name: "unknown question id ignored", answers: map[string]string{uuid.New().String(): "b", q2.ID.String(): "c"}, want: 3},
		{name: "malformed option id scored incorrect", answers: map[string]string{q1.ID.String(): "nonexistent-option", q2.ID.String(): "c"}, want: 3},
		{name: "empty option id scored incorrect", answers: map[string]string{q1.ID.String(): ""}, want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Score(tc.answers, questions); got != tc.want {
				t.Errorf("Score() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestScoreOrderInvariant(t *testing.T) {
	questions := []model.Question{
		mcq(t, "a", 1), mcq(t, "b", 2), mcq(t, "c", 4),
		mcq(t, "d", 8), mcq(t, "a", 16),
	}
	answers := map[string]string{
		questions[0].ID.String(): "a",
		questions[2].ID.String(): "c",
		questions[4].ID.String(): "b",
	}
	want := Score(answers, questions)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := make([]model.Question, len(questions))
		copy(shuffled, questions)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		if got := Score(answers, shuffled); got != want {
			t.Fatalf("Score() after shuffle = %d, want %d", got, want)
		}
	}
}

func TestScoreEmptyQuestionSet(t *testing.T) {
	if got := Score(map[string]string{"x": "y"}, nil); got != 0 {
		t.Errorf("Score() with no questions = %d, want 0", got)
	}
}

func TestTotalMarks(t *testing.T) {
	questions := []model.Question{mcq(t, "a", 5), mcq(t, "b", 3)}
	if got := TotalMarks(questions); got != 8 {
		t.Errorf("TotalMarks() = %d, want 8", got)
	}
	if got := TotalMarks(nil); got != 0 {
		t.Errorf("TotalMarks(nil) = %d, want 0", got)
	}
}
