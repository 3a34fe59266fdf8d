package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/proctorhq/examhall-backend/internal/config"
	"github.com/proctorhq/examhall-backend/internal/model"
	"github.com/proctorhq/examhall-backend/internal/repository"
	"github.com/proctorhq/examhall-backend/internal/response"
	"github.com/proctorhq/examhall-backend/internal/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Domain errors.
var (
	ErrNotExamAuthor = errors.New("not the author of this exam")
	ErrNoQuestions   = errors.New("exam has no questions, cannot be scheduled")
	ErrExamNotDraft  = errors.New("exam status is not DRAFT")
	ErrBadTransition = errors.New("invalid exam status transition")
)

// validTransitions encodes the exam lifecycle: drafts get scheduled, scheduled
// exams open or fall back to draft, open exams close. CLOSED is terminal.
var validTransitions = map[model.ExamStatus][]model.ExamStatus{
	model.ExamStatusDraft:     {model.ExamStatusScheduled},
	model.ExamStatusScheduled: {model.ExamStatusOngoing, model.ExamStatusDraft, model.ExamStatusClosed},
	model.ExamStatusOngoing:   {model.ExamStatusClosed},
}

// ExamService handles exam business logic and the Redis fast lane: once an
// exam becomes startable its sanitized payload, answer key, marks, and
// duration are cached so the attempt hot path never touches PostgreSQL.
type ExamService struct {
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// GetByID retrieves an exam by its UUID, without questions.
func (s *ExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return s.examRepo.GetByID(ctx, id)
}

// GetWithQuestions retrieves an exam with its full (unsanitized) question set.
func (s *ExamService) GetWithQuestions(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	questions, err := s.questionRepo.ListByExam(ctx, id)
	if err != nil {
		return nil, err
	}
	exam.Questions = questions
	return exam, nil
}

// List retrieves exams with pagination and an optional status filter.
func (s *ExamService) List(ctx context.Context, status *model.ExamStatus, page, perPage int) ([]model.Exam, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	limit := perPage
	offset := (page - 1) * perPage

	exams, total, err := s.examRepo.ListPaginated(ctx, status, limit, offset)
	if err != nil {
		return nil, nil, err
	}

	if exams == nil {
		exams = []model.Exam{}
	}

	totalPages := (total + perPage - 1) / perPage

	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	}

	return exams, pagination, nil
}

// ListStartable returns the exams candidates may currently enter.
func (s *ExamService) ListStartable(ctx context.Context) ([]model.Exam, error) {
	exams, err := s.examRepo.ListStartable(ctx)
	if err != nil {
		return nil, err
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	return exams, nil
}

// Create inserts a new exam as DRAFT.
func (s *ExamService) Create(ctx context.Context, exam *model.Exam) error {
	exam.Status = model.ExamStatusDraft
	return s.examRepo.Create(ctx, exam)
}

// Update modifies an existing draft exam.
func (s *ExamService) Update(ctx context.Context, authorID int, exam *model.Exam) error {
	existing, err := s.examRepo.GetByID(ctx, exam.ID)
	if err != nil {
		return err
	}
	if authorID != 0 && existing.AuthorID != authorID {
		return ErrNotExamAuthor
	}
	if existing.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	return s.examRepo.Update(ctx, exam)
}

// Delete removes a draft exam.
func (s *ExamService) Delete(ctx context.Context, id uuid.UUID, authorID int) error {
	existing, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if authorID != 0 && existing.AuthorID != authorID {
		return ErrNotExamAuthor
	}
	if existing.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	return s.examRepo.Delete(ctx, id)
}

// UpdateStatus moves an exam through its lifecycle. Entering a startable
// status warms the Redis fast lane; leaving it evicts the payload so stale
// caches can never serve a closed exam.
func (s *ExamService) UpdateStatus(ctx context.Context, examID uuid.UUID, target model.ExamStatus) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}

	allowed := false
	for _, next := range validTransitions[exam.Status] {
		if next == target {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, exam.Status, target)
	}

	if target.Startable() && !exam.Status.Startable() {
		if err := s.WarmExamCache(ctx, exam); err != nil {
			return err
		}
	}

	if err := s.examRepo.UpdateStatus(ctx, examID, target); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	if !target.Startable() && exam.Status.Startable() {
		s.evictExamCache(ctx, examID)
	}

	s.log.Info().
		Str("exam_id", examID.String()).
		Str("from", string(exam.Status)).
		Str("to", string(target)).
		Msg("Exam status changed")
	return nil
}

// WarmExamCache loads an exam's sanitized payload, answer key, per-question
// marks, and duration from PostgreSQL into Redis. Used on status transitions,
// question edits, and startup prewarming.
func (s *ExamService) WarmExamCache(ctx context.Context, exam *model.Exam) error {
	questions, err := s.questionRepo.ListByExam(ctx, exam.ID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	exam.Questions = questions
	exam.TotalMarks = session.TotalMarks(questions)
	sanitized := exam.Sanitize()

	payloadJSON, err := json.Marshal(sanitized)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	// Answer key and marks hashes for grading without a DB round trip.
	answerKey := make(map[string]interface{}, len(questions))
	marks := make(map[string]interface{}, len(questions))
	for _, q := range questions {
		answerKey[q.ID.String()] = q.CorrectOptionID
		marks[q.ID.String()] = q.Marks
	}

	examID := exam.ID.String()
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.ExamPayloadKey(examID), payloadJSON, 0)
	pipe.Set(ctx, config.CacheKey.ExamDurationKey(examID), exam.DurationMins, 0)
	pipe.Del(ctx, config.CacheKey.ExamAnswerKey(examID))
	pipe.HSet(ctx, config.CacheKey.ExamAnswerKey(examID), answerKey)
	pipe.Del(ctx, config.CacheKey.ExamMarksKey(examID))
	pipe.HSet(ctx, config.CacheKey.ExamMarksKey(examID), marks)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("exam_id", examID).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return nil
}

// RefreshCache re-warms a startable exam after its question set changed.
func (s *ExamService) RefreshCache(ctx context.Context, examID uuid.UUID) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}
	if !exam.Status.Startable() {
		return nil
	}
	return s.WarmExamCache(ctx, exam)
}

func (s *ExamService) evictExamCache(ctx context.Context, examID uuid.UUID) {
	id := examID.String()
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, config.CacheKey.ExamPayloadKey(id))
	pipe.Del(ctx, config.CacheKey.ExamDurationKey(id))
	pipe.Del(ctx, config.CacheKey.ExamAnswerKey(id))
	pipe.Del(ctx, config.CacheKey.ExamMarksKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Str("exam_id", id).Msg("Failed to evict exam cache")
	}
}

// PrewarmAllCaches loads all startable exams into Redis on application
// startup, so the first candidate never pays the lazy-load cost.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.examRepo.ListStartable(ctx)
	if err != nil {
		return fmt.Errorf("list startable exams: %w", err)
	}

	if len(exams) == 0 {
		s.log.Info().Msg("No startable exams to prewarm")
		return nil
	}

	warmed := 0
	for i := range exams {
		if err := s.WarmExamCache(ctx, &exams[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}

// GetSanitizedPayload retrieves the candidate-facing exam payload from Redis,
// falling back to PostgreSQL (and self-healing the cache) on a miss.
func (s *ExamService) GetSanitizedPayload(ctx context.Context, examID uuid.UUID) (*model.SanitizedExam, error) {
	key := config.CacheKey.ExamPayloadKey(examID.String())
	data, err := s.rdb.Get(ctx, key).Bytes()

	if err == nil {
		var payload model.SanitizedExam
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return &payload, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get payload: %w", err)
	}

	// Cache miss: rebuild from the source of truth.
	exam, err := s.GetWithQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !exam.Status.Startable() {
		return nil, session.ErrExamNotAvailable
	}
	if err := s.WarmExamCache(ctx, exam); err != nil {
		return nil, err
	}
	sanitized := exam.Sanitize()
	return &sanitized, nil
}

// QuestionsForGrading reconstructs the full question set from the Redis
// payload, answer key, and marks hashes. A miss on any piece falls back to
// PostgreSQL. The live session engine needs these to score and to validate
// incoming question ids.
func (s *ExamService) QuestionsForGrading(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	id := examID.String()

	data, err := s.rdb.Get(ctx, config.CacheKey.ExamPayloadKey(id)).Bytes()
	if err != nil {
		return s.questionsFromDB(ctx, examID)
	}
	answerKey, err := s.rdb.HGetAll(ctx, config.CacheKey.ExamAnswerKey(id)).Result()
	if err != nil || len(answerKey) == 0 {
		return s.questionsFromDB(ctx, examID)
	}

	var payload model.SanitizedExam
	if err := json.Unmarshal(data, &payload); err != nil {
		return s.questionsFromDB(ctx, examID)
	}

	questions := make([]model.Question, 0, len(payload.Questions))
	for _, sq := range payload.Questions {
		correct, ok := answerKey[sq.ID.String()]
		if !ok {
			// Payload and key hash disagree; trust the database.
			return s.questionsFromDB(ctx, examID)
		}
		questions = append(questions, model.Question{
			ID:              sq.ID,
			ExamID:          examID,
			Text:            sq.Text,
			Description:     sq.Description,
			Options:         sq.Options,
			CorrectOptionID: correct,
			Marks:           sq.Marks,
			Position:        sq.Position,
		})
	}
	return questions, nil
}

func (s *ExamService) questionsFromDB(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return questions, nil
}

// GetDurationMins returns an exam's duration from the Redis fast lane with a
// database fallback and self-heal.
func (s *ExamService) GetDurationMins(ctx context.Context, examID uuid.UUID) (int, error) {
	val, err := s.rdb.Get(ctx, config.CacheKey.ExamDurationKey(examID.String())).Result()
	if err == nil {
		if mins, convErr := strconv.Atoi(val); convErr == nil {
			return mins, nil
		}
	}
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return 0, err
	}
	_ = s.rdb.Set(ctx, config.CacheKey.ExamDurationKey(examID.String()), exam.DurationMins, 0).Err()
	return exam.DurationMins, nil
}
