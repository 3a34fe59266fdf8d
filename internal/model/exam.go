package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
// Candidates may only start attempts against SCHEDULED or ONGOING exams.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusScheduled ExamStatus = "SCHEDULED"
	ExamStatusOngoing   ExamStatus = "ONGOING"
	ExamStatusClosed    ExamStatus = "CLOSED"
)

// Startable reports whether a candidate may begin an attempt on an exam in
// this status.
func (s ExamStatus) Startable() bool {
	return s == ExamStatusScheduled || s == ExamStatusOngoing
}

// Exam represents an exam entity. TotalMarks is derived from the question set
// and recomputed whenever the questions change — it is never set directly.
type Exam struct {
	ID           uuid.UUID  `json:"id"`
	Title        string     `json:"title"`
	Code         string     `json:"code"`
	Department   string     `json:"department"`
	Instructor   string     `json:"instructor,omitempty"`
	Description  string     `json:"description,omitempty"`
	DurationMins int        `json:"duration_mins"`
	PassScore    int        `json:"pass_score"` // percentage, 0-100
	TotalMarks   int        `json:"total_marks"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	EndDate      *time.Time `json:"end_date,omitempty"`
	Status       ExamStatus `json:"status"`
	AuthorID     int        `json:"author_id"`
	Questions    []Question `json:"questions,omitempty"` // ordered: defines navigation and palette order
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SanitizedExam is an exam payload served to candidates with grading fields
// stripped from every question.
type SanitizedExam struct {
	ID           uuid.UUID           `json:"id"`
	Title        string              `json:"title"`
	Code         string              `json:"code"`
	Department   string              `json:"department"`
	Instructor   string              `json:"instructor,omitempty"`
	Description  string              `json:"description,omitempty"`
	DurationMins int                 `json:"duration_mins"`
	PassScore    int                 `json:"pass_score"`
	TotalMarks   int                 `json:"total_marks"`
	Status       ExamStatus          `json:"status"`
	Questions    []SanitizedQuestion `json:"questions"`
}

// Sanitize builds the candidate-facing payload for this exam.
func (e *Exam) Sanitize() SanitizedExam {
	qs := make([]SanitizedQuestion, 0, len(e.Questions))
	for i := range e.Questions {
		qs = append(qs, e.Questions[i].Sanitize())
	}
	return SanitizedExam{
		ID:           e.ID,
		Title:        e.Title,
		Code:         e.Code,
		Department:   e.Department,
		Instructor:   e.Instructor,
		Description:  e.Description,
		DurationMins: e.DurationMins,
		PassScore:    e.PassScore,
		TotalMarks:   e.TotalMarks,
		Status:       e.Status,
		Questions:    qs,
	}
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Title        string     `json:"title" binding:"required,min=3,max=255"`
	Code         string     `json:"code" binding:"required,min=2,max=20,alphanum"`
	Department   string     `json:"department" binding:"required,min=2,max=100"`
	Instructor   string     `json:"instructor" binding:"omitempty,max=100"`
	Description  string     `json:"description" binding:"omitempty,max=2000"`
	DurationMins int        `json:"duration_mins" binding:"required,min=1,max=480"`
	PassScore    int        `json:"pass_score" binding:"min=0,max=100"`
	StartDate    *time.Time `json:"start_date" binding:"omitempty"`
	EndDate      *time.Time `json:"end_date" binding:"omitempty,gtfield=StartDate"`
}

// UpdateExamRequest is the payload for updating an existing exam.
type UpdateExamRequest struct {
	Title        string     `json:"title" binding:"omitempty,min=3,max=255"`
	Department   string     `json:"department" binding:"omitempty,min=2,max=100"`
	Instructor   *string    `json:"instructor" binding:"omitempty,max=100"`
	Description  *string    `json:"description" binding:"omitempty,max=2000"`
	DurationMins int        `json:"duration_mins" binding:"omitempty,min=1,max=480"`
	PassScore    *int       `json:"pass_score" binding:"omitempty,min=0,max=100"`
	StartDate    *time.Time `json:"start_date" binding:"omitempty"`
	EndDate      *time.Time `json:"end_date" binding:"omitempty"`
}

// UpdateExamStatusRequest moves an exam through its lifecycle.
type UpdateExamStatusRequest struct {
	Status ExamStatus `json:"status" binding:"required,oneof=DRAFT SCHEDULED ONGOING CLOSED"`
}
