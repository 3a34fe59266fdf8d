package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Option is a single answer choice. Option IDs are short tokens ("a".."d")
// unique within their question.
type Option struct {
	ID   string `json:"id" binding:"required,min=1,max=10"`
	Text string `json:"text" binding:"required,min=1,max=500"`
}

// Question represents a single-select exam question with a fixed point value.
type Question struct {
	ID              uuid.UUID `json:"id"`
	ExamID          uuid.UUID `json:"exam_id"`
	Text            string    `json:"text"`
	Description     string    `json:"description,omitempty"`
	Options         []Option  `json:"options"`
	CorrectOptionID string    `json:"correct_option_id"`
	Explanation     string    `json:"explanation,omitempty"`
	Marks           int       `json:"marks"`
	Position        int       `json:"position"`
}

// SanitizedQuestion is a question as served to candidates: the correct option
// and the explanation are stripped.
type SanitizedQuestion struct {
	ID          uuid.UUID `json:"id"`
	Text        string    `json:"text"`
	Description string    `json:"description,omitempty"`
	Options     []Option  `json:"options"`
	Marks       int       `json:"marks"`
	Position    int       `json:"position"`
}

// Sanitize strips grading fields from a question for candidate delivery.
func (q *Question) Sanitize() SanitizedQuestion {
	return SanitizedQuestion{
		ID:          q.ID,
		Text:        q.Text,
		Description: q.Description,
		Options:     q.Options,
		Marks:       q.Marks,
		Position:    q.Position,
	}
}

// Validate checks the question definition invariants: at least two options,
// option IDs unique within the question, the correct option present among
// them, and a positive mark value.
func (q *Question) Validate() error {
	if len(q.Options) < 2 {
		return errors.New("question requires at least two options")
	}
	if q.Marks <= 0 {
		return errors.New("marks must be a positive integer")
	}

	seen := make(map[string]struct{}, len(q.Options))
	for _, opt := range q.Options {
		if _, dup := seen[opt.ID]; dup {
			return fmt.Errorf("duplicate option id %q", opt.ID)
		}
		seen[opt.ID] = struct{}{}
	}

	if _, ok := seen[q.CorrectOptionID]; !ok {
		return fmt.Errorf("correct option %q is not among the options", q.CorrectOptionID)
	}
	return nil
}

// CreateQuestionRequest is the payload for adding a question to an exam.
type CreateQuestionRequest struct {
	Text            string   `json:"text" binding:"required,min=1,max=2000"`
	Description     string   `json:"description" binding:"omitempty,max=2000"`
	Options         []Option `json:"options" binding:"required,min=2,max=10,dive"`
	CorrectOptionID string   `json:"correct_option_id" binding:"required,max=10"`
	Explanation     string   `json:"explanation" binding:"omitempty,max=2000"`
	Marks           int      `json:"marks" binding:"required,min=1"`
	Position        int      `json:"position" binding:"min=0"`
}

// UpdateQuestionRequest is the payload for updating an existing question.
type UpdateQuestionRequest struct {
	Text            string   `json:"text" binding:"omitempty,min=1,max=2000"`
	Description     *string  `json:"description" binding:"omitempty,max=2000"`
	Options         []Option `json:"options" binding:"omitempty,min=2,max=10,dive"`
	CorrectOptionID string   `json:"correct_option_id" binding:"omitempty,max=10"`
	Explanation     *string  `json:"explanation" binding:"omitempty,max=2000"`
	Marks           int      `json:"marks" binding:"omitempty,min=1"`
	Position        *int     `json:"position" binding:"omitempty,min=0"`
}
