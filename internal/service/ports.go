package service

import (
	"context"
	"time"

	"advisor-marketplace/backend/internal/models"
)

// NotificationKind selects one of the fixed outbound message templates. The
// core decides that and to whom a notification fires; rendering belongs to
// the transport adapter.
type NotificationKind string

const (
	NotifyNewRequest     NotificationKind = "new_request"
	NotifyAccepted       NotificationKind = "request_accepted"
	NotifyDeclined       NotificationKind = "request_declined"
	NotifyMessage        NotificationKind = "new_message"
	NotifyExpired        NotificationKind = "session_expired"
	NotifyCompleted      NotificationKind = "session_completed"
	NotifyReviewReceived NotificationKind = "review_received"
	NotifyCursorRepaired NotificationKind = "cursor_repaired"
	NotifySessionMissing NotificationKind = "session_not_found"
)

// Notification is one outbound event, parameterized by session and peer.
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	SessionID string           `json:"session_id,omitempty"`
	PeerName  string           `json:"peer_name,omitempty"`
	Body      string           `json:"body,omitempty"`
}

// Notifier delivers notifications to the external chat transport.
// Fire-and-forget relative to the state mutation that triggered it: a
// failed delivery is logged by the implementation, never propagated.
type Notifier interface {
	Notify(ctx context.Context, userID uint, n Notification)
}

// Archiver hands a completed session's transcript to the external archiving
// collaborator and returns its archive id. Failures must not fail complete.
type Archiver interface {
	Archive(ctx context.Context, session *models.Session, messages []models.Message) (string, error)
}

// ExpiryScheduler arms a deferred timer that expires a still-pending
// session once the wait window elapses. The timer is a latency optimization
// only; the periodic sweep over persisted deadlines is the source of truth.
type ExpiryScheduler interface {
	Schedule(sessionID string, at time.Time)
}

// NopNotifier discards notifications. Used where delivery is not wired.
type NopNotifier struct{}

func (NopNotifier) Notify(ctx context.Context, userID uint, n Notification) {}

// NopScheduler drops scheduling requests, leaving expiry to the sweep.
type NopScheduler struct{}

func (NopScheduler) Schedule(sessionID string, at time.Time) {}
