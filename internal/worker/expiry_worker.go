package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/proctorhq/examhall-backend/internal/service"
)

// ExpiryWorker periodically sweeps for IN_PROGRESS attempts whose deadline
// passed while no live session was watching them (process restarts, dead
// connections) and auto-submits each one through the normal finalize path.
type ExpiryWorker struct {
	attemptService *service.AttemptService
	interval       time.Duration
	log            zerolog.Logger
}

// NewExpiryWorker creates a new ExpiryWorker.
func NewExpiryWorker(attemptService *service.AttemptService, interval time.Duration, log zerolog.Logger) *ExpiryWorker {
	return &ExpiryWorker{
		attemptService: attemptService,
		interval:       interval,
		log:            log.With().Str("component", "expiry_worker").Logger(),
	}
}

// Start begins the sweep loop. Call in a goroutine.
func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("Worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			submitted, err := w.attemptService.SweepExpired(ctx)
			if err != nil {
				w.log.Error().Err(err).Msg("Sweep failed")
				continue
			}
			if submitted > 0 {
				w.log.Info().Int("count", submitted).Msg("Auto-submitted overdue attempts")
			}
		}
	}
}
