package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/proctorhq/examhall-backend/internal/model"
	"github.com/proctorhq/examhall-backend/internal/repository"
	"github.com/rs/zerolog"
)

// QuestionService handles question management. Every mutation recomputes the
// exam's derived total_marks and refreshes the Redis fast lane when the exam
// is already startable.
type QuestionService struct {
	questionRepo *repository.QuestionRepository
	examRepo     *repository.ExamRepository
	examService  *ExamService
	log          zerolog.Logger
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(
	questionRepo *repository.QuestionRepository,
	examRepo *repository.ExamRepository,
	examService *ExamService,
	log zerolog.Logger,
) *QuestionService {
	return &QuestionService{
		questionRepo: questionRepo,
		examRepo:     examRepo,
		examService:  examService,
		log:          log.With().Str("component", "question_service").Logger(),
	}
}

// ListByExam retrieves an exam's full question set, ordered by position.
func (s *QuestionService) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if questions == nil {
		questions = []model.Question{}
	}
	return questions, nil
}

// Create validates and inserts a question, then syncs derived state.
func (s *QuestionService) Create(ctx context.Context, q *model.Question) error {
	if err := q.Validate(); err != nil {
		return err
	}
	if err := s.questionRepo.Create(ctx, q); err != nil {
		return err
	}
	return s.syncDerivedState(ctx, q.ExamID)
}

// Update validates and replaces a question, then syncs derived state.
func (s *QuestionService) Update(ctx context.Context, q *model.Question) error {
	if err := q.Validate(); err != nil {
		return err
	}
	if err := s.questionRepo.Update(ctx, q); err != nil {
		return err
	}
	return s.syncDerivedState(ctx, q.ExamID)
}

// Delete removes a question, then syncs derived state.
func (s *QuestionService) Delete(ctx context.Context, examID, questionID uuid.UUID) error {
	if err := s.questionRepo.Delete(ctx, questionID); err != nil {
		return err
	}
	return s.syncDerivedState(ctx, examID)
}

// GetByID retrieves a single question with grading fields.
func (s *QuestionService) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	return s.questionRepo.GetByID(ctx, id)
}

// syncDerivedState recomputes total_marks from the question set and refreshes
// the exam cache if the exam is startable.
func (s *QuestionService) syncDerivedState(ctx context.Context, examID uuid.UUID) error {
	total, err := s.questionRepo.SumMarks(ctx, examID)
	if err != nil {
		return fmt.Errorf("sum marks: %w", err)
	}
	if err := s.examRepo.UpdateTotalMarks(ctx, examID, total); err != nil {
		return fmt.Errorf("update total marks: %w", err)
	}
	if err := s.examService.RefreshCache(ctx, examID); err != nil {
		// The database is consistent; a failed refresh only delays the fast
		// lane until the next warm.
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Cache refresh failed after question change")
	}
	return nil
}
