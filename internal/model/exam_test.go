package model

import "testing"

func TestExamStatusStartable(t *testing.T) {
	tests := []struct {
		status ExamStatus
		want   bool
	}{
		{ExamStatusDraft, false},
		{ExamStatusScheduled, true},
		{ExamStatusOngoing, true},
		{ExamStatusClosed, false},
		{ExamStatus("UNKNOWN"), false},
	}

	for _, tt := range tests {
		if got := tt.status.Startable(); got != tt.want {
			t.Errorf("%s.Startable() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestExamSanitize(t *testing.T) {
	e := Exam{
		Title:        "Algebra Midterm",
		DurationMins: 60,
		TotalMarks:   10,
		Status:       ExamStatusScheduled,
		Questions: []Question{
			{
				Text:            "1+1?",
				Options:         []Option{{ID: "a", Text: "1"}, {ID: "b", Text: "2"}},
				CorrectOptionID: "b",
				Marks:           10,
			},
		},
	}

	s := e.Sanitize()
	if s.Title != e.Title || s.DurationMins != 60 || s.TotalMarks != 10 {
		t.Errorf("Sanitize() = %+v", s)
	}
	if len(s.Questions) != 1 {
		t.Fatalf("Sanitize() questions = %d, want 1", len(s.Questions))
	}
}
