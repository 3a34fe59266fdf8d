package session

import (
	"github.com/proctorhq/examhall-backend/internal/model"
)

// Score grades an answer map against a question set. For every question whose
// recorded answer equals its correct option, the question's marks are added;
// anything else — unanswered, unknown option id, option from another question —
// contributes zero. The function is pure and total: it never fails, whatever
// the answer map contains, and runs in linear time over the question set.
func Score(answers map[string]string, questions []model.Question) int {
	total := 0
	for i := range questions {
		q := &questions[i]
		picked, ok := answers[q.ID.String()]
		if !ok {
			continue
		}
		if picked == q.CorrectOptionID {
			total += q.Marks
		}
	}
	return total
}

// TotalMarks sums the point values of a question set. This is the only way
// an exam's total is ever produced; it is recomputed whenever the question
// set changes.
func TotalMarks(questions []model.Question) int {
	total := 0
	for i := range questions {
		total += questions[i].Marks
	}
	return total
}
