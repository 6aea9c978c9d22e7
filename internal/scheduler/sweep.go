package scheduler

import (
	"context"
	"time"

	"advisor-marketplace/backend/internal/repository"
	"advisor-marketplace/backend/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// FinalizeFunc runs the post-transition cleanup for one expired session:
// buffer discard, cursor clear, client notification.
type FinalizeFunc func(ctx context.Context, sessionID string)

// Sweeper periodically expires every pending session past its persisted
// deadline. It is the source of truth for expiry: deferred timers only
// shave latency off the common case.
type Sweeper struct {
	sessions repository.SessionStore
	finalize FinalizeFunc
	interval time.Duration
	log      *logger.Logger
	swept    metric.Int64Counter
}

// NewSweeper creates the sweep job. Interval defaults to one minute.
func NewSweeper(sessions repository.SessionStore, finalize FinalizeFunc, interval time.Duration, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}

	meter := otel.Meter("advisor-marketplace/scheduler")
	swept, _ := meter.Int64Counter("consultation_sweep_expired_total",
		metric.WithDescription("Pending sessions expired by the periodic sweep"))

	return &Sweeper{
		sessions: sessions,
		finalize: finalize,
		interval: interval,
		log:      log,
		swept:    swept,
	}
}

// Run sweeps on the configured cadence until the context is cancelled.
// Intended to run on its own goroutine.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.SweepOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// SweepOnce expires all overdue pending sessions and finalizes each one the
// sweep itself transitioned. Sessions already expired by their own timer
// are not re-reported by the store, so no duplicate notifications.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	ids, err := s.sessions.SweepExpired(ctx, time.Now())
	if err != nil {
		s.log.Warn("expiry sweep failed", "error", err.Error())
		return
	}
	if len(ids) == 0 {
		return
	}

	s.swept.Add(ctx, int64(len(ids)))
	s.log.Info("expired overdue sessions", "count", len(ids))

	for _, id := range ids {
		s.finalize(ctx, id)
	}
}
