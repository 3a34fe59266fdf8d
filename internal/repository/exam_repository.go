package repository

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/proctorhq/examhall-backend/internal/model"
)

var ErrDuplicateCode = errors.New("exam with this code already exists")

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam by its UUID, without questions.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, code, department, instructor, description, duration_mins,
		        pass_score, total_marks, start_date, end_date, status, author_id,
		        created_at, updated_at
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.Code, &e.Department, &e.Instructor, &e.Description,
		&e.DurationMins, &e.PassScore, &e.TotalMarks, &e.StartDate, &e.EndDate,
		&e.Status, &e.AuthorID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListPaginated retrieves exams with pagination and an optional status filter.
func (r *ExamRepository) ListPaginated(ctx context.Context, status *model.ExamStatus, limit, offset int) ([]model.Exam, int, error) {
	countQuery := `SELECT COUNT(*) FROM exams`
	var countArgs []interface{}
	if status != nil {
		countQuery += ` WHERE status = $1`
		countArgs = append(countArgs, *status)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, title, code, department, instructor, description, duration_mins,
	                 pass_score, total_marks, start_date, end_date, status, author_id,
	                 created_at, updated_at
	          FROM exams`
	var args []interface{}
	argIdx := 1

	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, *status)
		argIdx++
	}

	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(argIdx) + ` OFFSET $` + strconv.Itoa(argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Title, &e.Code, &e.Department, &e.Instructor, &e.Description,
			&e.DurationMins, &e.PassScore, &e.TotalMarks, &e.StartDate, &e.EndDate,
			&e.Status, &e.AuthorID, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, 0, err
		}
		exams = append(exams, e)
	}
	return exams, total, rows.Err()
}

// ListStartable returns all exams candidates may currently enter.
// Used for the candidate portal listing and cache prewarming on startup.
func (r *ExamRepository) ListStartable(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, code, department, instructor, description, duration_mins,
		        pass_score, total_marks, start_date, end_date, status, author_id,
		        created_at, updated_at
		 FROM exams WHERE status IN ($1, $2)
		 ORDER BY start_date NULLS LAST, created_at DESC`,
		model.ExamStatusScheduled, model.ExamStatusOngoing)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Title, &e.Code, &e.Department, &e.Instructor, &e.Description,
			&e.DurationMins, &e.PassScore, &e.TotalMarks, &e.StartDate, &e.EndDate,
			&e.Status, &e.AuthorID, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// Create inserts a new exam in DRAFT status.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, code, department, instructor, description, duration_mins,
		                    pass_score, start_date, end_date, status, author_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, total_marks, created_at, updated_at`,
		e.Title, e.Code, e.Department, e.Instructor, e.Description, e.DurationMins,
		e.PassScore, e.StartDate, e.EndDate, e.Status, e.AuthorID,
	).Scan(&e.ID, &e.TotalMarks, &e.CreatedAt, &e.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateCode
		}
		return err
	}
	return nil
}

// Update modifies an exam's metadata.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams
		 SET title = $1, department = $2, instructor = $3, description = $4,
		     duration_mins = $5, pass_score = $6, start_date = $7, end_date = $8,
		     updated_at = NOW()
		 WHERE id = $9`,
		e.Title, e.Department, e.Instructor, e.Description,
		e.DurationMins, e.PassScore, e.StartDate, e.EndDate, e.ID)
	return err
}

// UpdateStatus moves an exam through its lifecycle.
func (r *ExamRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ExamStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	return err
}

// UpdateTotalMarks writes the derived total after the question set changed.
func (r *ExamRepository) UpdateTotalMarks(ctx context.Context, id uuid.UUID, totalMarks int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams SET total_marks = $1, updated_at = NOW() WHERE id = $2`,
		totalMarks, id)
	return err
}

// Delete removes an exam and, via cascade, its questions and attempts.
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
	return err
}
