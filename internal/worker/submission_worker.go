package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/proctorhq/examhall-backend/internal/config"
	"github.com/proctorhq/examhall-backend/internal/model"
	"github.com/proctorhq/examhall-backend/internal/repository"
	"github.com/proctorhq/examhall-backend/internal/session"
)

// SubmissionWorker redelivers finalized results whose first write to the
// attempts table failed. Each queue item carries the complete snapshotted
// result, so redelivery never recomputes anything. An attempt that turns out
// to be already SUBMITTED counts as acknowledged.
type SubmissionWorker struct {
	attemptRepo *repository.AttemptRepository
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewSubmissionWorker creates a new SubmissionWorker.
func NewSubmissionWorker(attemptRepo *repository.AttemptRepository, rdb *redis.Client, log zerolog.Logger) *SubmissionWorker {
	return &SubmissionWorker{
		attemptRepo: attemptRepo,
		rdb:         rdb,
		log:         log.With().Str("component", "submission_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *SubmissionWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *SubmissionWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, time.Second, config.WorkerKey.DeliverResultsQueue).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var res session.Result
	if err := json.Unmarshal([]byte(result[1]), &res); err != nil {
		w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
		return
	}

	if err := w.deliver(ctx, &res); err != nil {
		w.log.Error().Err(err).
			Int("candidate_id", res.CandidateID).
			Str("exam_id", res.ExamID.String()).
			Msg("Redelivery failed, retrying in 5s")
		w.rdb.RPush(ctx, config.WorkerKey.DeliverResultsQueue, result[1])
		time.Sleep(5 * time.Second)
		return
	}

	w.log.Info().
		Int("candidate_id", res.CandidateID).
		Str("exam_id", res.ExamID.String()).
		Msg("Result redelivered")
}

func (w *SubmissionWorker) deliver(ctx context.Context, res *session.Result) error {
	performed, err := w.attemptRepo.Finalize(ctx,
		res.ExamID, res.CandidateID,
		res.Score, res.TimeTakenSeconds, res.ViolationsCount,
		res.SubmittedAt, res.AutoSubmitted, res.Answers, []string{})
	if err != nil {
		return err
	}
	if performed {
		return nil
	}

	// Zero rows affected: either already SUBMITTED (acknowledged) or the
	// row is missing entirely, which is unrecoverable for a redelivery.
	attempt, err := w.attemptRepo.GetByExamAndCandidate(ctx, res.ExamID, res.CandidateID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			w.log.Error().
				Int("candidate_id", res.CandidateID).
				Str("exam_id", res.ExamID.String()).
				Msg("Dropping result for missing attempt row")
			return nil
		}
		return err
	}
	if attempt.Status == model.AttemptStatusSubmitted {
		return nil // prior delivery won; treat as acknowledged
	}
	return errors.New("attempt not transitioned")
}

// drain processes all remaining items before shutdown.
func (w *SubmissionWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.DeliverResultsQueue).Result()
		if err != nil {
			break
		}

		var res session.Result
		if err := json.Unmarshal([]byte(result), &res); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.deliver(ctx, &res); err != nil {
			w.log.Error().Err(err).Msg("Drain delivery error")
			w.rdb.RPush(ctx, config.WorkerKey.DeliverResultsQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
