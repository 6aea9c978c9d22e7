// Package buffer holds messages authored before an advisor accepts a
// consultation. Contents are volatile: losing them costs at most a client's
// pre-accept remarks, and the store must never block the session record.
package buffer

import (
	"context"
	"time"
)

// Message is one buffered pre-accept message. Sender and timestamp are
// preserved so the accept-time flush can stamp the durable Message with the
// original values.
type Message struct {
	SenderID uint      `json:"sender_id"`
	Content  string    `json:"content"`
	MediaRef string    `json:"media_ref,omitempty"`
	SentAt   time.Time `json:"sent_at"`
}

// Store is the buffer interface. Append and Drain are atomic per session;
// no cross-session ordering is guaranteed. Entries are time-boxed by the
// store's TTL and evicted even if no lifecycle transition occurs.
type Store interface {
	// Append adds a message to the session's buffer and refreshes its TTL.
	Append(ctx context.Context, sessionID string, msg Message) error
	// Drain atomically returns and clears all buffered messages for a
	// session, in append order.
	Drain(ctx context.Context, sessionID string) ([]Message, error)
	// Discard drops the session's buffer without returning it.
	Discard(ctx context.Context, sessionID string) error
}
