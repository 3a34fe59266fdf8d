package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/proctorhq/examhall-backend/internal/model"
)

// AttemptResult combines candidate data with their attempt details for the
// administrator results view.
type AttemptResult struct {
	CandidateID      int                 `json:"candidate_id"`
	Name             string              `json:"name"`
	IDCard           string              `json:"id_card"`
	Score            *int                `json:"score"`
	TotalMarks       int                 `json:"total_marks"`
	Status           model.AttemptStatus `json:"status"`
	StartedAt        time.Time           `json:"started_at"`
	SubmittedAt      *time.Time          `json:"submitted_at"`
	TimeTakenSeconds *int                `json:"time_taken_seconds"`
	AutoSubmitted    bool                `json:"auto_submitted"`
	ViolationsCount  int                 `json:"violations_count"`
}

// ExpiredAttempt identifies an in-progress attempt whose deadline has passed.
type ExpiredAttempt struct {
	AttemptID    uuid.UUID
	ExamID       uuid.UUID
	CandidateID  int
	StartedAt    time.Time
	DurationMins int
}

// AttemptRepository handles attempt data access. The UNIQUE(exam_id,
// candidate_id) constraint is what makes attempt creation and finalization
// idempotent under concurrent requests.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Create inserts the single attempt row for an (exam, candidate) pair. When a
// concurrent request already created it, the conflict is absorbed and the
// existing row is returned instead; the second return value reports whether
// this call created the row.
func (r *AttemptRepository) Create(ctx context.Context, examID uuid.UUID, candidateID int) (*model.Attempt, bool, error) {
	a := &model.Attempt{
		ExamID:      examID,
		CandidateID: candidateID,
		Status:      model.AttemptStatusInProgress,
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO attempts (exam_id, candidate_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (exam_id, candidate_id) DO NOTHING
		 RETURNING id, started_at`,
		examID, candidateID, model.AttemptStatusInProgress,
	).Scan(&a.ID, &a.StartedAt)

	if err == nil {
		return a, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	// Conflict: the row already exists, fetch it.
	existing, err := r.GetByExamAndCandidate(ctx, examID, candidateID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetByExamAndCandidate retrieves the attempt for an (exam, candidate) pair.
func (r *AttemptRepository) GetByExamAndCandidate(ctx context.Context, examID uuid.UUID, candidateID int) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, candidate_id, started_at, submitted_at, status,
		        answers, flagged, violations_count, score, time_taken_seconds, auto_submitted
		 FROM attempts
		 WHERE exam_id = $1 AND candidate_id = $2`, examID, candidateID,
	).Scan(&a.ID, &a.ExamID, &a.CandidateID, &a.StartedAt, &a.SubmittedAt, &a.Status,
		&a.Answers, &a.Flagged, &a.ViolationsCount, &a.Score, &a.TimeTakenSeconds, &a.AutoSubmitted)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByID retrieves an attempt by its UUID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, candidate_id, started_at, submitted_at, status,
		        answers, flagged, violations_count, score, time_taken_seconds, auto_submitted
		 FROM attempts
		 WHERE id = $1`, id,
	).Scan(&a.ID, &a.ExamID, &a.CandidateID, &a.StartedAt, &a.SubmittedAt, &a.Status,
		&a.Answers, &a.Flagged, &a.ViolationsCount, &a.Score, &a.TimeTakenSeconds, &a.AutoSubmitted)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Finalize writes the terminal record for an attempt. The conditional WHERE
// clause makes it first-writer-wins: only a row still IN_PROGRESS transitions,
// so a duplicate delivery affects zero rows. It reports whether this call
// performed the transition.
func (r *AttemptRepository) Finalize(ctx context.Context, examID uuid.UUID, candidateID int,
	score, timeTakenSeconds, violationsCount int, submittedAt time.Time,
	autoSubmitted bool, answers map[string]string, flagged []string) (bool, error) {

	if answers == nil {
		answers = map[string]string{}
	}
	if flagged == nil {
		flagged = []string{}
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, score = $2, time_taken_seconds = $3, violations_count = $4,
		     submitted_at = $5, auto_submitted = $6, answers = $7, flagged = $8,
		     updated_at = NOW()
		 WHERE exam_id = $9 AND candidate_id = $10 AND status = $11`,
		model.AttemptStatusSubmitted, score, timeTakenSeconds, violationsCount,
		submittedAt, autoSubmitted, answers, flagged,
		examID, candidateID, model.AttemptStatusInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// UpdateProgress persists the live snapshot of an in-progress attempt:
// autosaved answers, review flags, and the violation count. Submitted rows
// are never touched.
func (r *AttemptRepository) UpdateProgress(ctx context.Context, examID uuid.UUID, candidateID int,
	answers map[string]string, flagged []string, violationsCount int) error {

	if answers == nil {
		answers = map[string]string{}
	}
	if flagged == nil {
		flagged = []string{}
	}

	_, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET answers = $1, flagged = $2, violations_count = $3, updated_at = NOW()
		 WHERE exam_id = $4 AND candidate_id = $5 AND status = $6`,
		answers, flagged, violationsCount,
		examID, candidateID, model.AttemptStatusInProgress)
	return err
}

// GetSubmissionStatus answers the entry screen's pre-start check.
func (r *AttemptRepository) GetSubmissionStatus(ctx context.Context, examID uuid.UUID, candidateID int) (*model.SubmissionStatus, error) {
	var (
		status      model.AttemptStatus
		score       *int
		submittedAt *time.Time
		totalMarks  int
	)
	err := r.pool.QueryRow(ctx,
		`SELECT a.status, a.score, a.submitted_at, e.total_marks
		 FROM attempts a
		 JOIN exams e ON a.exam_id = e.id
		 WHERE a.exam_id = $1 AND a.candidate_id = $2`, examID, candidateID,
	).Scan(&status, &score, &submittedAt, &totalMarks)
	if errors.Is(err, pgx.ErrNoRows) {
		return &model.SubmissionStatus{HasSubmitted: false}, nil
	}
	if err != nil {
		return nil, err
	}

	if status != model.AttemptStatusSubmitted {
		return &model.SubmissionStatus{HasSubmitted: false}, nil
	}
	return &model.SubmissionStatus{
		HasSubmitted: true,
		Score:        score,
		TotalMarks:   &totalMarks,
		SubmittedAt:  submittedAt,
	}, nil
}

// ListByExam retrieves all candidate results for an exam with pagination.
func (r *AttemptRepository) ListByExam(ctx context.Context, examID uuid.UUID, limit, offset int) ([]AttemptResult, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE exam_id = $1`, examID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.name, c.id_card, a.score, e.total_marks, a.status,
		        a.started_at, a.submitted_at, a.time_taken_seconds, a.auto_submitted, a.violations_count
		 FROM attempts a
		 JOIN candidates c ON a.candidate_id = c.id
		 JOIN exams e ON a.exam_id = e.id
		 WHERE a.exam_id = $1
		 ORDER BY a.score DESC NULLS LAST, c.name ASC
		 LIMIT $2 OFFSET $3`, examID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []AttemptResult
	for rows.Next() {
		var res AttemptResult
		if err := rows.Scan(&res.CandidateID, &res.Name, &res.IDCard, &res.Score, &res.TotalMarks,
			&res.Status, &res.StartedAt, &res.SubmittedAt, &res.TimeTakenSeconds,
			&res.AutoSubmitted, &res.ViolationsCount); err != nil {
			return nil, 0, err
		}
		results = append(results, res)
	}
	return results, total, rows.Err()
}

// ListByCandidate retrieves all of a candidate's attempts, newest first.
func (r *AttemptRepository) ListByCandidate(ctx context.Context, candidateID int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, candidate_id, started_at, submitted_at, status,
		        answers, flagged, violations_count, score, time_taken_seconds, auto_submitted
		 FROM attempts
		 WHERE candidate_id = $1
		 ORDER BY started_at DESC`, candidateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.ExamID, &a.CandidateID, &a.StartedAt, &a.SubmittedAt, &a.Status,
			&a.Answers, &a.Flagged, &a.ViolationsCount, &a.Score, &a.TimeTakenSeconds, &a.AutoSubmitted); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ListExpired returns in-progress attempts whose deadline passed before the
// given instant. The sweeper finalizes these server-side so an abandoned
// attempt cannot stay open past its window.
func (r *AttemptRepository) ListExpired(ctx context.Context, now time.Time) ([]ExpiredAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.exam_id, a.candidate_id, a.started_at, e.duration_mins
		 FROM attempts a
		 JOIN exams e ON a.exam_id = e.id
		 WHERE a.status = $1
		   AND a.started_at + (e.duration_mins * INTERVAL '1 minute') < $2`,
		model.AttemptStatusInProgress, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []ExpiredAttempt
	for rows.Next() {
		var ea ExpiredAttempt
		if err := rows.Scan(&ea.AttemptID, &ea.ExamID, &ea.CandidateID, &ea.StartedAt, &ea.DurationMins); err != nil {
			return nil, err
		}
		expired = append(expired, ea)
	}
	return expired, rows.Err()
}

// CountInProgressByExam returns live attempt counts for the admin overview.
func (r *AttemptRepository) CountInProgressByExam(ctx context.Context, examID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE exam_id = $1 AND status = $2`,
		examID, model.AttemptStatusInProgress,
	).Scan(&count)
	return count, err
}
