package model

import "testing"

func validQuestion() Question {
	return Question{
		Text: "2+2?",
		Options: []Option{
			{ID: "a", Text: "3"},
			{ID: "b", Text: "4"},
		},
		CorrectOptionID: "b",
		Marks:           2,
	}
}

func TestQuestionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Question)
		wantErr bool
	}{
		{"valid", func(q *Question) {}, false},
		{"single option", func(q *Question) { q.Options = q.Options[:1] }, true},
		{"zero marks", func(q *Question) { q.Marks = 0 }, true},
		{"negative marks", func(q *Question) { q.Marks = -1 }, true},
		{"duplicate option id", func(q *Question) { q.Options[1].ID = "a" }, true},
		{"correct option missing", func(q *Question) { q.CorrectOptionID = "z" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := validQuestion()
			tt.mutate(&q)
			err := q.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestQuestionSanitizeStripsGradingFields(t *testing.T) {
	q := validQuestion()
	q.Explanation = "because arithmetic"

	s := q.Sanitize()
	if len(s.Options) != 2 || s.Marks != 2 {
		t.Errorf("Sanitize() lost candidate-facing fields: %+v", s)
	}
	// SanitizedQuestion has no CorrectOptionID or Explanation fields by
	// construction; verify the option payload is intact.
	if s.Options[1].ID != "b" || s.Options[1].Text != "4" {
		t.Errorf("Sanitize() options = %+v", s.Options)
	}
}
