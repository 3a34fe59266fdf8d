package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ViolationRecord is one persisted focus-loss event.
type ViolationRecord struct {
	ID          int64     `json:"id"`
	ExamID      uuid.UUID `json:"exam_id"`
	CandidateID int       `json:"candidate_id"`
	Kind        string    `json:"kind"`
	Seq         int       `json:"seq"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// ViolationRepository handles the violation event log. Rows are append-only;
// the count on the attempt row is the authoritative total, this log carries
// the per-event detail for administrator review.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// BulkInsert writes a batch of violation events in one round trip.
func (r *ViolationRepository) BulkInsert(ctx context.Context, records []ViolationRecord) error {
	rows := make([][]interface{}, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []interface{}{
			rec.ExamID, rec.CandidateID, rec.Kind, rec.Seq, rec.OccurredAt,
		})
	}

	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"violations"},
		[]string{"exam_id", "candidate_id", "kind", "seq", "occurred_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// Insert writes a single violation event. Used as the row-by-row fallback
// when a bulk insert fails.
func (r *ViolationRepository) Insert(ctx context.Context, rec *ViolationRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO violations (exam_id, candidate_id, kind, seq, occurred_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.ExamID, rec.CandidateID, rec.Kind, rec.Seq, rec.OccurredAt)
	return err
}

// ListByAttempt returns the event log for one candidate's attempt, in order.
func (r *ViolationRepository) ListByAttempt(ctx context.Context, examID uuid.UUID, candidateID int) ([]ViolationRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, candidate_id, kind, seq, occurred_at
		 FROM violations
		 WHERE exam_id = $1 AND candidate_id = $2
		 ORDER BY seq`, examID, candidateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ViolationRecord
	for rows.Next() {
		var rec ViolationRecord
		if err := rows.Scan(&rec.ID, &rec.ExamID, &rec.CandidateID, &rec.Kind, &rec.Seq, &rec.OccurredAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountsByExam returns per-candidate violation totals for an exam.
func (r *ViolationRepository) CountsByExam(ctx context.Context, examID uuid.UUID) (map[int]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT candidate_id, COUNT(*)
		 FROM violations
		 WHERE exam_id = $1
		 GROUP BY candidate_id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var cid int
		var count int64
		if err := rows.Scan(&cid, &count); err != nil {
			return nil, err
		}
		counts[cid] = count
	}
	return counts, rows.Err()
}
