package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/proctorhq/examhall-backend/internal/config"
	"github.com/proctorhq/examhall-backend/internal/repository"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// ViolationWorker consumes persist_violations_queue and writes the durable
// violation log in batches. The live counter on the session never waits for
// this path.
type ViolationWorker struct {
	violationRepo *repository.ViolationRepository
	rdb           *redis.Client
	log           zerolog.Logger
}

// NewViolationWorker creates a new ViolationWorker.
func NewViolationWorker(violationRepo *repository.ViolationRepository, rdb *redis.Client, log zerolog.Logger) *ViolationWorker {
	return &ViolationWorker{
		violationRepo: violationRepo,
		rdb:           rdb,
		log:           log.With().Str("component", "violation_worker").Logger(),
	}
}

type violationPayload struct {
	CandidateID int    `json:"candidate_id"`
	ExamID      string `json:"exam_id"`
	Kind        string `json:"kind"`
	Seq         int    `json:"seq"`
	Timestamp   int64  `json:"timestamp"`
}

func (w *ViolationWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	buffer := make([]*violationPayload, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// Flush on size or age.
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistViolationsQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue // queue empty, loop back to check the flush timer
			}
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var payload violationPayload
		if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
			// Malformed JSON cannot be retried. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		buffer = append(buffer, &payload)
	}
}

// flushSafe attempts bulk insert, then falls back to row-by-row with requeue.
func (w *ViolationWorker) flushSafe(ctx context.Context, batch []*violationPayload) {
	records, bad := w.toRecords(batch)
	for _, p := range bad {
		w.log.Error().Str("exam_id", p.ExamID).Msg("Dropping violation with invalid exam id")
	}
	if len(records) == 0 {
		return
	}

	if err := w.violationRepo.BulkInsert(ctx, records); err != nil {
		w.log.Warn().Err(err).Int("count", len(records)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, records)
	}
}

func (w *ViolationWorker) toRecords(batch []*violationPayload) ([]repository.ViolationRecord, []*violationPayload) {
	records := make([]repository.ViolationRecord, 0, len(batch))
	bad := make([]*violationPayload, 0)
	for _, p := range batch {
		examID, err := uuid.Parse(p.ExamID)
		if err != nil {
			bad = append(bad, p)
			continue
		}
		records = append(records, repository.ViolationRecord{
			ExamID:      examID,
			CandidateID: p.CandidateID,
			Kind:        p.Kind,
			Seq:         p.Seq,
			OccurredAt:  time.Unix(p.Timestamp, 0),
		})
	}
	return records, bad
}

func (w *ViolationWorker) fallbackInsert(ctx context.Context, records []repository.ViolationRecord) {
	requeueList := make([]repository.ViolationRecord, 0)

	for i := range records {
		if err := w.violationRepo.Insert(ctx, &records[i]); err != nil {
			w.log.Error().Err(err).Int("candidate_id", records[i].CandidateID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, records[i])
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *ViolationWorker) requeue(ctx context.Context, records []repository.ViolationRecord) {
	pipe := w.rdb.Pipeline()
	for _, rec := range records {
		data, _ := json.Marshal(violationPayload{
			CandidateID: rec.CandidateID,
			ExamID:      rec.ExamID.String(),
			Kind:        rec.Kind,
			Seq:         rec.Seq,
			Timestamp:   rec.OccurredAt.Unix(),
		})
		pipe.RPush(ctx, config.WorkerKey.PersistViolationsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
	} else {
		w.log.Info().Int("count", len(records)).Msg("Requeued failed items back to Redis")
		// Avoid thrashing while the database is down.
		time.Sleep(2 * time.Second)
	}
}

func (w *ViolationWorker) shutdown(buffer []*violationPayload) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
