package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/proctorhq/examhall-backend/internal/config"
	"github.com/proctorhq/examhall-backend/internal/model"
	"github.com/proctorhq/examhall-backend/internal/repository"
	"github.com/proctorhq/examhall-backend/internal/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// attemptKey identifies one live session in the registry.
type attemptKey struct {
	examID      uuid.UUID
	candidateID int
}

// answerQueuePayload is the autosave item pushed to the persistence queue.
type answerQueuePayload struct {
	CandidateID int    `json:"candidate_id"`
	ExamID      string `json:"exam_id"`
	QID         string `json:"q_id"`
	Answer      string `json:"answer"`
}

// violationQueuePayload is the violation event pushed to the persistence queue.
type violationQueuePayload struct {
	CandidateID int    `json:"candidate_id"`
	ExamID      string `json:"exam_id"`
	Kind        string `json:"kind"`
	Seq         int    `json:"seq"`
	Timestamp   int64  `json:"timestamp"`
}

// AttemptService owns the live attempt sessions: one in-memory state machine
// per (exam, candidate) pair, restored from PostgreSQL and the Redis autosave
// buffers after a restart. All candidate exam-screen operations route through
// it.
type AttemptService struct {
	mu       sync.Mutex
	sessions map[attemptKey]*session.Session

	attemptRepo *repository.AttemptRepository
	examService *ExamService
	rdb         *redis.Client
	clock       session.Clock
	log         zerolog.Logger
	sink        session.Sink
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	attemptRepo *repository.AttemptRepository,
	examService *ExamService,
	rdb *redis.Client,
	log zerolog.Logger,
) *AttemptService {
	s := &AttemptService{
		sessions:    make(map[attemptKey]*session.Session),
		attemptRepo: attemptRepo,
		examService: examService,
		rdb:         rdb,
		clock:       time.Now,
		log:         log.With().Str("component", "attempt_service").Logger(),
	}
	s.sink = &attemptSink{attemptRepo: attemptRepo, log: s.log}
	return s
}

// StartAttempt creates (or resumes) the single attempt for an (exam,
// candidate) pair and returns the attempt together with the sanitized exam
// payload. Starting is rejected for non-startable exams and for pairs that
// already submitted.
func (s *AttemptService) StartAttempt(ctx context.Context, examID uuid.UUID, candidateID int) (*model.Attempt, *model.SanitizedExam, error) {
	exam, err := s.examService.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, session.ErrExamNotAvailable
		}
		return nil, nil, fmt.Errorf("get exam: %w", err)
	}
	if !exam.Status.Startable() {
		return nil, nil, session.ErrExamNotAvailable
	}

	existing, err := s.attemptRepo.GetByExamAndCandidate(ctx, examID, candidateID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, fmt.Errorf("check existing attempt: %w", err)
	}
	if existing != nil && existing.Status == model.AttemptStatusSubmitted {
		return nil, nil, session.ErrAlreadySubmitted
	}

	attempt := existing
	if attempt == nil {
		created, _, err := s.attemptRepo.Create(ctx, examID, candidateID)
		if err != nil {
			return nil, nil, fmt.Errorf("create attempt: %w", err)
		}
		attempt = created
	}

	// Cache the start time so remaining-time recomputation skips the DB.
	startKey := config.CacheKey.AttemptStartKey(examID.String(), candidateID)
	if err := s.rdb.Set(ctx, startKey, attempt.StartedAt.Unix(), 0).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to cache attempt start time")
	}

	if _, err := s.ensureSession(ctx, attempt); err != nil {
		return nil, nil, err
	}

	payload, err := s.examService.GetSanitizedPayload(ctx, examID)
	if err != nil {
		return nil, nil, err
	}

	return attempt, payload, nil
}

// GetState returns the resume payload for an in-progress attempt.
func (s *AttemptService) GetState(ctx context.Context, examID uuid.UUID, candidateID int) (*model.AttemptState, error) {
	sess, err := s.liveSession(ctx, examID, candidateID)
	if err != nil {
		return nil, err
	}
	state := sess.Snapshot()
	return &state, nil
}

// RecordAnswer upserts one answer into the live session, mirrors it into the
// Redis autosave buffer, and queues it for durable persistence.
func (s *AttemptService) RecordAnswer(ctx context.Context, examID uuid.UUID, candidateID int, questionID, optionID string) error {
	sess, err := s.liveSession(ctx, examID, candidateID)
	if err != nil {
		return err
	}
	if err := sess.RecordAnswer(questionID, optionID); err != nil {
		return err
	}

	answersKey := config.CacheKey.AttemptAnswersKey(examID.String(), candidateID)
	payload, _ := json.Marshal(answerQueuePayload{
		CandidateID: candidateID,
		ExamID:      examID.String(),
		QID:         questionID,
		Answer:      optionID,
	})

	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, answersKey, questionID, optionID)
	pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		// The in-memory session already holds the answer; autosave is
		// best-effort and finalize carries the authoritative map.
		s.log.Warn().Err(err).Msg("Autosave buffering failed")
	}
	return nil
}

// ToggleFlag flips a review marker and mirrors the flag set into Redis.
func (s *AttemptService) ToggleFlag(ctx context.Context, examID uuid.UUID, candidateID int, questionID string) (bool, error) {
	sess, err := s.liveSession(ctx, examID, candidateID)
	if err != nil {
		return false, err
	}
	flagged, err := sess.ToggleFlag(questionID)
	if err != nil {
		return false, err
	}

	flagsKey := config.CacheKey.AttemptFlagsKey(examID.String(), candidateID)
	if flagged {
		_ = s.rdb.SAdd(ctx, flagsKey, questionID).Err()
	} else {
		_ = s.rdb.SRem(ctx, flagsKey, questionID).Err()
	}
	return flagged, nil
}

// Navigate moves the live session's current-question pointer.
func (s *AttemptService) Navigate(ctx context.Context, examID uuid.UUID, candidateID int, index int) error {
	sess, err := s.liveSession(ctx, examID, candidateID)
	if err != nil {
		return err
	}
	return sess.Navigate(index)
}

// RecordViolation feeds a focus-loss event to the live session's integrity
// monitor and queues the event for durable persistence. Returns the updated
// count.
func (s *AttemptService) RecordViolation(ctx context.Context, examID uuid.UUID, candidateID int, kind session.ViolationKind) (int, error) {
	sess, err := s.liveSession(ctx, examID, candidateID)
	if err != nil {
		return 0, err
	}
	count, err := sess.RecordViolation(kind)
	if err != nil {
		return 0, err
	}

	payload, _ := json.Marshal(violationQueuePayload{
		CandidateID: candidateID,
		ExamID:      examID.String(),
		Kind:        string(kind),
		Seq:         count,
		Timestamp:   s.clock().Unix(),
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, payload).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Violation queue push failed")
	}
	return count, nil
}

// AcknowledgeWarning clears a pending violation warning.
func (s *AttemptService) AcknowledgeWarning(ctx context.Context, examID uuid.UUID, candidateID int) error {
	sess, err := s.liveSession(ctx, examID, candidateID)
	if err != nil {
		return err
	}
	sess.AcknowledgeWarning()
	return nil
}

// LiveSession exposes the live session for streaming consumers (the exam
// WebSocket subscribes to its warning channel). It restores the session from
// storage if this process has not seen the attempt yet.
func (s *AttemptService) LiveSession(ctx context.Context, examID uuid.UUID, candidateID int) (*session.Session, error) {
	return s.liveSession(ctx, examID, candidateID)
}

// Finalize drives the idempotent terminal transition for an attempt. A repeat
// call (or one racing the timer) returns the already-finalized result. A
// transient sink failure is absorbed: the result is queued for redelivery and
// returned as success.
func (s *AttemptService) Finalize(ctx context.Context, examID uuid.UUID, candidateID int, req *model.FinalizeRequest) (*session.Result, error) {
	attempt, err := s.attemptRepo.GetByExamAndCandidate(ctx, examID, candidateID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.Status == model.AttemptStatusSubmitted {
		return s.resultFromAttempt(ctx, attempt)
	}

	sess, err := s.ensureSession(ctx, attempt)
	if err != nil {
		return nil, err
	}

	if req != nil && len(req.Answers) > 0 {
		sess.MergeAnswers(req.Answers)
	}

	trigger := session.TriggerManual
	if req != nil && req.Reason == "exit" {
		trigger = session.TriggerExit
	}

	res, performed, err := sess.Finalize(ctx, trigger)
	if err != nil {
		if session.IsTransientDelivery(err) {
			// Local commit stands; the session's delivery-failure hook has
			// already queued the payload for the retry worker.
			err = nil
		} else {
			return nil, err
		}
	}
	if performed || res != nil {
		s.afterFinalize(ctx, res)
	}
	return res, nil
}

// SweepExpired finalizes every in-progress attempt whose deadline has passed.
// Attempts with a live timer in this process expire on their own; the sweep
// covers attempts orphaned by a restart. Returns the number finalized.
func (s *AttemptService) SweepExpired(ctx context.Context) (int, error) {
	expired, err := s.attemptRepo.ListExpired(ctx, s.clock())
	if err != nil {
		return 0, fmt.Errorf("list expired: %w", err)
	}

	swept := 0
	for _, ea := range expired {
		attempt, err := s.attemptRepo.GetByExamAndCandidate(ctx, ea.ExamID, ea.CandidateID)
		if err != nil {
			s.log.Error().Err(err).Str("attempt_id", ea.AttemptID.String()).Msg("Sweep: fetch failed")
			continue
		}
		if attempt.Status != model.AttemptStatusInProgress {
			continue
		}

		sess, err := s.ensureSession(ctx, attempt)
		if err != nil {
			s.log.Error().Err(err).Str("attempt_id", ea.AttemptID.String()).Msg("Sweep: restore failed")
			continue
		}

		res, performed, err := sess.Finalize(ctx, session.TriggerTimeout)
		if err != nil && session.IsTransientDelivery(err) {
			// Redelivery is queued by the session's delivery-failure hook.
			err = nil
		}
		if err != nil {
			s.log.Error().Err(err).Str("attempt_id", ea.AttemptID.String()).Msg("Sweep: finalize failed")
			continue
		}
		if res != nil {
			s.afterFinalize(ctx, res)
		}
		if performed {
			swept++
		}
	}
	return swept, nil
}

// GetSubmissionStatus answers the entry screen's pre-start check.
func (s *AttemptService) GetSubmissionStatus(ctx context.Context, examID uuid.UUID, candidateID int) (*model.SubmissionStatus, error) {
	return s.attemptRepo.GetSubmissionStatus(ctx, examID, candidateID)
}

// GetResult returns the finalized attempt for the results screen.
func (s *AttemptService) GetResult(ctx context.Context, examID uuid.UUID, candidateID int) (*session.Result, error) {
	attempt, err := s.attemptRepo.GetByExamAndCandidate(ctx, examID, candidateID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrAttemptNotFound
		}
		return nil, err
	}
	if attempt.Status != model.AttemptStatusSubmitted {
		return nil, session.ErrAttemptNotFound
	}
	return s.resultFromAttempt(ctx, attempt)
}

// GetLastResult serves a candidate's most recent finalized result from the
// Redis display cache, falling back to the attempts table.
func (s *AttemptService) GetLastResult(ctx context.Context, candidateID int) (*session.Result, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.LastResultKey(candidateID)).Bytes()
	if err == nil {
		var res session.Result
		if jsonErr := json.Unmarshal(data, &res); jsonErr == nil {
			return &res, nil
		}
	}

	attempts, err := s.attemptRepo.ListByCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	for i := range attempts {
		if attempts[i].Status == model.AttemptStatusSubmitted {
			return s.resultFromAttempt(ctx, &attempts[i])
		}
	}
	return nil, session.ErrAttemptNotFound
}

// ListMyAttempts returns all of a candidate's attempts, newest first.
func (s *AttemptService) ListMyAttempts(ctx context.Context, candidateID int) ([]model.Attempt, error) {
	attempts, err := s.attemptRepo.ListByCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if attempts == nil {
		attempts = []model.Attempt{}
	}
	return attempts, nil
}

// ListResultsByExam retrieves paginated per-candidate results for an exam.
func (s *AttemptService) ListResultsByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]repository.AttemptResult, *int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 25
	}
	if perPage > 100 {
		perPage = 100
	}
	results, total, err := s.attemptRepo.ListByExam(ctx, examID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if results == nil {
		results = []repository.AttemptResult{}
	}
	return results, &total, nil
}

// liveSession returns the registered session for the pair, restoring it from
// storage when the process has not seen the attempt yet.
func (s *AttemptService) liveSession(ctx context.Context, examID uuid.UUID, candidateID int) (*session.Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[attemptKey{examID, candidateID}]
	s.mu.Unlock()
	if ok {
		return sess, nil
	}

	attempt, err := s.attemptRepo.GetByExamAndCandidate(ctx, examID, candidateID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	if attempt.Status == model.AttemptStatusSubmitted {
		return nil, session.ErrAlreadySubmitted
	}
	return s.ensureSession(ctx, attempt)
}

// ensureSession builds and registers the live state machine for an attempt,
// seeding it from the persisted row merged with the Redis autosave buffers
// (the buffers may be fresher than the row). Idempotent per pair.
func (s *AttemptService) ensureSession(ctx context.Context, attempt *model.Attempt) (*session.Session, error) {
	key := attemptKey{attempt.ExamID, attempt.CandidateID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[key]; ok {
		return sess, nil
	}

	questions, err := s.examService.QuestionsForGrading(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	duration, err := s.examService.GetDurationMins(ctx, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get duration: %w", err)
	}

	answers := make(map[string]string, len(attempt.Answers))
	for qid, oid := range attempt.Answers {
		answers[qid] = oid
	}
	examID := attempt.ExamID.String()
	if buffered, err := s.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(examID, attempt.CandidateID)).Result(); err == nil {
		for qid, oid := range buffered {
			answers[qid] = oid
		}
	}

	flagged := attempt.Flagged
	if cached, err := s.rdb.SMembers(ctx, config.CacheKey.AttemptFlagsKey(examID, attempt.CandidateID)).Result(); err == nil && len(cached) > 0 {
		flagged = cached
	}

	sess := session.New(session.Config{
		AttemptID:    attempt.ID,
		ExamID:       attempt.ExamID,
		CandidateID:  attempt.CandidateID,
		Questions:    questions,
		DurationMins: duration,
		Clock:        s.clock,
		Sink:         s.sink,
		// Fires for every trigger, including the in-process timeout path
		// that has no service caller to observe the error.
		OnDeliveryFailure: func(res *session.Result) {
			s.enqueueRedelivery(context.Background(), res)
		},
	})
	if err := sess.Start(attempt.StartedAt, answers, flagged, attempt.ViolationsCount); err != nil {
		return nil, err
	}

	s.sessions[key] = sess
	return sess, nil
}

// afterFinalize evicts the live session, caches the result for the candidate's
// results screen, and drops the attempt's Redis buffers.
func (s *AttemptService) afterFinalize(ctx context.Context, res *session.Result) {
	s.mu.Lock()
	delete(s.sessions, attemptKey{res.ExamID, res.CandidateID})
	s.mu.Unlock()

	examID := res.ExamID.String()
	data, err := json.Marshal(res)
	if err != nil {
		return
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.LastResultKey(res.CandidateID), data, 24*time.Hour)
	pipe.Del(ctx, config.CacheKey.AttemptAnswersKey(examID, res.CandidateID))
	pipe.Del(ctx, config.CacheKey.AttemptFlagsKey(examID, res.CandidateID))
	pipe.Del(ctx, config.CacheKey.AttemptStartKey(examID, res.CandidateID))
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Post-finalize cleanup failed")
	}
}

// enqueueRedelivery queues a finalized result whose durable write failed. The
// submission worker retries with the identical payload until the store
// acknowledges.
func (s *AttemptService) enqueueRedelivery(ctx context.Context, res *session.Result) {
	if res == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.DeliverResultsQueue, data).Err(); err != nil {
		s.log.Error().Err(err).
			Str("attempt_id", res.AttemptID.String()).
			Msg("CRITICAL: result redelivery enqueue failed")
		return
	}
	s.log.Warn().
		Str("attempt_id", res.AttemptID.String()).
		Msg("Result delivery deferred to retry queue")
}

// resultFromAttempt rebuilds the result payload from a submitted attempt row.
func (s *AttemptService) resultFromAttempt(ctx context.Context, a *model.Attempt) (*session.Result, error) {
	exam, err := s.examService.GetByID(ctx, a.ExamID)
	if err != nil {
		return nil, err
	}

	res := &session.Result{
		AttemptID:       a.ID,
		ExamID:          a.ExamID,
		CandidateID:     a.CandidateID,
		TotalMarks:      exam.TotalMarks,
		StartedAt:       a.StartedAt,
		AutoSubmitted:   a.AutoSubmitted,
		ViolationsCount: a.ViolationsCount,
		Answers:         a.Answers,
	}
	if a.Score != nil {
		res.Score = *a.Score
	}
	if a.TimeTakenSeconds != nil {
		res.TimeTakenSeconds = *a.TimeTakenSeconds
	}
	if a.SubmittedAt != nil {
		res.SubmittedAt = *a.SubmittedAt
	}
	return res, nil
}

// attemptSink is the durable store behind the live sessions. It maps the
// conditional-update outcome onto the sink contract: zero rows on an already
// submitted attempt is an acknowledgement, database failures are transient.
type attemptSink struct {
	attemptRepo *repository.AttemptRepository
	log         zerolog.Logger
}

func (s *attemptSink) Deliver(ctx context.Context, res *session.Result) error {
	flagged := []string{} // flags are review state; they are not part of the terminal record
	performed, err := s.attemptRepo.Finalize(ctx, res.ExamID, res.CandidateID,
		res.Score, res.TimeTakenSeconds, res.ViolationsCount, res.SubmittedAt,
		res.AutoSubmitted, res.Answers, flagged)
	if err != nil {
		return &session.DeliveryError{Err: err}
	}
	if performed {
		return nil
	}

	attempt, err := s.attemptRepo.GetByExamAndCandidate(ctx, res.ExamID, res.CandidateID)
	if err != nil {
		return &session.DeliveryError{Err: err}
	}
	if attempt.Status == model.AttemptStatusSubmitted {
		return session.ErrAlreadySubmitted
	}
	return &session.DeliveryError{Err: fmt.Errorf("attempt %s not transitioned", res.AttemptID)}
}
