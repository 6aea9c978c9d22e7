// Package scheduler drives time-based session expiry. The deferred timer
// is a latency optimization for the common case; the periodic sweep over
// persisted deadlines is the recovery path that survives restarts. Both
// funnel into the same conditional transition, so running redundantly is
// harmless.
package scheduler

import (
	"context"
	"sync"
	"time"

	"advisor-marketplace/backend/pkg/logger"
)

// ExpireFunc moves one session past its deadline. Implemented by the
// consultation service; must be safe to call for sessions that already
// left pending.
type ExpireFunc func(ctx context.Context, sessionID string) error

// ExpiryTimers holds one in-process timer per pending session. Timers are
// lost on restart; the sweep picks up whatever they missed.
type ExpiryTimers struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	expire ExpireFunc
	log    *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewExpiryTimers creates the timer registry. Fired timers call expire with
// a context that is cancelled by Stop.
func NewExpiryTimers(expire ExpireFunc, log *logger.Logger) *ExpiryTimers {
	ctx, cancel := context.WithCancel(context.Background())
	return &ExpiryTimers{
		timers: make(map[string]*time.Timer),
		expire: expire,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Schedule arms a timer that expires the session at the given instant. A
// second schedule for the same session replaces the first. Deadlines in
// the past fire immediately.
func (e *ExpiryTimers) Schedule(sessionID string, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.timers[sessionID]; ok {
		existing.Stop()
	}

	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}

	e.timers[sessionID] = time.AfterFunc(delay, func() {
		e.fire(sessionID)
	})
}

// Cancel disarms the session's timer if one is pending. Not required for
// correctness: a timer firing on a session that already left pending is a
// no-op at the store.
func (e *ExpiryTimers) Cancel(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.timers[sessionID]; ok {
		t.Stop()
		delete(e.timers, sessionID)
	}
}

// Stop disarms all timers and cancels in-flight expirations.
func (e *ExpiryTimers) Stop() {
	e.mu.Lock()
	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
	e.mu.Unlock()

	e.cancel()
}

func (e *ExpiryTimers) fire(sessionID string) {
	e.mu.Lock()
	delete(e.timers, sessionID)
	e.mu.Unlock()

	if err := e.expire(e.ctx, sessionID); err != nil {
		// The sweep will retry; deadline stays persisted.
		e.log.Warn("deferred expiry failed", "session_id", sessionID, "error", err.Error())
	}
}
