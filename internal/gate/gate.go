// Package gate reconciles a user's conversational cursor against the
// durable session record before an inbound event is acted on. The session
// record always wins: a cursor that disagrees is repaired, the event is
// swallowed, and the user gets a corrective notice instead of an action
// taken against stale state.
package gate

import (
	"context"
	"time"

	"advisor-marketplace/backend/internal/cursor"
	"advisor-marketplace/backend/internal/models"
	"advisor-marketplace/backend/internal/repository"
	"advisor-marketplace/backend/internal/service"
	apperrors "advisor-marketplace/backend/pkg/errors"
	"advisor-marketplace/backend/pkg/logger"
)

// ExpireFunc lets the gate trigger an inline expiry when it observes a
// pending session past its deadline, without waiting for timer or sweep.
type ExpireFunc func(ctx context.Context, sessionID string) error

// Gate checks cursor-versus-record consistency. It never returns an error
// to the event path: on any internal failure it fails open and lets the
// event through.
type Gate struct {
	sessions repository.SessionStore
	cursors  cursor.Store
	notifier service.Notifier
	expire   ExpireFunc
	log      *logger.Logger
	now      func() time.Time
}

func New(sessions repository.SessionStore, cursors cursor.Store, notifier service.Notifier, expire ExpireFunc, log *logger.Logger) *Gate {
	return &Gate{
		sessions: sessions,
		cursors:  cursors,
		notifier: notifier,
		expire:   expire,
		log:      log,
		now:      time.Now,
	}
}

// Check reconciles the user's cursor with the session record. It returns
// true when the event may proceed. A false return means the cursor was
// repaired (or cleared), a corrective notice was sent, and the triggering
// event must be dropped.
func (g *Gate) Check(ctx context.Context, userID uint) bool {
	state, err := g.cursors.Get(ctx, userID)
	if err != nil {
		g.log.Warn("cursor read failed, passing event through", "user_id", userID, "error", err.Error())
		return true
	}
	if state == nil {
		// No consultation context to disagree with.
		return true
	}

	session, err := g.sessions.GetByID(ctx, state.SessionID)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeNotFound) {
			g.clear(ctx, userID)
			g.notifier.Notify(ctx, userID, service.Notification{
				Kind:      service.NotifySessionMissing,
				SessionID: state.SessionID,
			})
			return false
		}
		g.log.Warn("session read failed, passing event through", "user_id", userID, "error", err.Error())
		return true
	}

	// A pending session past its deadline expires inline; the expiry path
	// clears the cursor and notifies the client itself.
	if session.Status == models.StatusPending && session.Deadline(g.now()) {
		if err := g.expire(ctx, session.ID); err != nil {
			g.log.Warn("inline expiry failed", "session_id", session.ID, "error", err.Error())
		}
		return false
	}

	expected, ok := expectedPhase(session, userID)
	if !ok {
		g.clear(ctx, userID)
		g.repaired(ctx, userID, session.ID)
		return false
	}

	if state.Phase != expected {
		if err := g.cursors.Set(ctx, userID, cursor.State{Phase: expected, SessionID: session.ID}); err != nil {
			g.log.Warn("cursor repair failed", "user_id", userID, "error", err.Error())
		}
		g.repaired(ctx, userID, session.ID)
		return false
	}

	return true
}

// expectedPhase maps the session's status to the phase the user's cursor
// should be on. The second result is false when the user should have no
// cursor at all for this session.
func expectedPhase(session *models.Session, userID uint) (cursor.Phase, bool) {
	isClient := userID == session.ClientID

	switch session.Status {
	case models.StatusPending:
		if isClient {
			return cursor.PhaseWaiting, true
		}
		return "", false
	case models.StatusActive:
		return cursor.PhaseChatting, true
	case models.StatusCompleted:
		// Only the client lingers to rate.
		if isClient {
			return cursor.PhaseRating, true
		}
		return "", false
	default:
		return "", false
	}
}

func (g *Gate) clear(ctx context.Context, userID uint) {
	if err := g.cursors.Clear(ctx, userID); err != nil {
		g.log.Warn("cursor clear failed", "user_id", userID, "error", err.Error())
	}
}

func (g *Gate) repaired(ctx context.Context, userID uint, sessionID string) {
	g.notifier.Notify(ctx, userID, service.Notification{
		Kind:      service.NotifyCursorRepaired,
		SessionID: sessionID,
	})
}
