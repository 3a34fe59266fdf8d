package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Gate and lifecycle errors. These are terminal, non-retryable, and detected
// before any mutation.
var (
	ErrExamNotAvailable = errors.New("exam is not available")
	ErrAlreadySubmitted = errors.New("attempt has already been submitted")
	ErrAttemptNotFound  = errors.New("no attempt in progress")
	ErrNotStarted       = errors.New("attempt has not been started")
	ErrUnknownQuestion  = errors.New("question does not belong to this exam")
	ErrIndexOutOfRange  = errors.New("question index out of range")
)

// Result is the finalized record delivered to the submission sink. All fields
// are snapshotted at finalize time and never recomputed.
type Result struct {
	AttemptID        uuid.UUID         `json:"attempt_id"`
	ExamID           uuid.UUID         `json:"exam_id"`
	CandidateID      int               `json:"candidate_id"`
	Score            int               `json:"score"`
	TotalMarks       int               `json:"total_marks"`
	TimeTakenSeconds int               `json:"time_taken_seconds"`
	StartedAt        time.Time         `json:"started_at"`
	SubmittedAt      time.Time         `json:"submitted_at"`
	AutoSubmitted    bool              `json:"auto_submitted"`
	ViolationsCount  int               `json:"violations_count"`
	Answers          map[string]string `json:"answers"`
}

// Sink is the durable store for finalized results. It must accept at most one
// terminal record per (exam, candidate) pair; a redelivery of an
// already-recorded result returns ErrAlreadySubmitted, which callers treat as
// acknowledgement. Transient failures are reported as *DeliveryError so the
// caller retries with the same payload.
type Sink interface {
	Deliver(ctx context.Context, res *Result) error
}

// DeliveryError marks a transient sink failure (network, database outage).
// The local finalize is never rolled back on a DeliveryError; delivery is
// retried with the identical payload until acknowledged.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver result: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsTransientDelivery reports whether err is a retryable delivery failure.
func IsTransientDelivery(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de)
}
