package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt states. SUBMITTED is terminal: once an
// attempt reaches it, no further mutation of any kind is accepted.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusSubmitted  AttemptStatus = "SUBMITTED"
)

// Attempt represents one candidate's run through one exam's questions.
// At most one attempt exists per (exam, candidate) pair.
type Attempt struct {
	ID               uuid.UUID         `json:"id"`
	ExamID           uuid.UUID         `json:"exam_id"`
	CandidateID      int               `json:"candidate_id"`
	StartedAt        time.Time         `json:"started_at"`
	SubmittedAt      *time.Time        `json:"submitted_at,omitempty"`
	Status           AttemptStatus     `json:"status"`
	Answers          map[string]string `json:"answers,omitempty"` // questionID -> optionID
	Flagged          []string          `json:"flagged,omitempty"` // review markers, never scored
	ViolationsCount  int               `json:"violations_count"`
	Score            *int              `json:"score,omitempty"`
	TimeTakenSeconds *int              `json:"time_taken_seconds,omitempty"`
	AutoSubmitted    bool              `json:"auto_submitted"`
}

// AttemptState is the resume payload: everything the exam screen needs to
// reconstruct an in-progress attempt after a reload.
type AttemptState struct {
	ExamID           uuid.UUID         `json:"exam_id"`
	CandidateID      int               `json:"candidate_id"`
	StartedAt        time.Time         `json:"started_at"`
	Answers          map[string]string `json:"answers"`
	Flagged          []string          `json:"flagged"`
	ViolationsCount  int               `json:"violations_count"`
	RemainingSeconds int               `json:"remaining_seconds"`
}

// RecordAnswerRequest is the best-effort incremental autosave payload.
type RecordAnswerRequest struct {
	OptionID string `json:"option_id" binding:"required,min=1,max=10"`
}

// FinalizeRequest is the submit payload. The answer map travels with it so
// finalize is authoritative even if incremental autosaves were lost.
// StartedAt/SubmittedAt are accepted for audit parity with older clients but
// the server clock and the stored attempt remain authoritative for timing.
type FinalizeRequest struct {
	Answers         map[string]string `json:"answers" binding:"omitempty"`
	Reason          string            `json:"reason" binding:"omitempty,oneof=manual exit"`
	ViolationsCount int               `json:"violations_count" binding:"min=0"`
	StartedAt       *time.Time        `json:"started_at" binding:"omitempty"`
	SubmittedAt     *time.Time        `json:"submitted_at" binding:"omitempty"`
}

// SubmissionStatus answers the entry screen's "has this candidate already
// submitted?" check.
type SubmissionStatus struct {
	HasSubmitted bool       `json:"has_submitted"`
	Score        *int       `json:"score,omitempty"`
	TotalMarks   *int       `json:"total_marks,omitempty"`
	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
}
