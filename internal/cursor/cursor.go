// Package cursor tracks which consultation phase a user's chat client
// believes it is in. The cursor is a derived cache of the durable session
// record: always reconstructible, never authoritative.
package cursor

import (
	"context"
)

// Phase is the conversational step the user's client is parked on.
type Phase string

const (
	PhaseWaiting  Phase = "waiting-for-advisor"
	PhaseChatting Phase = "chatting"
	PhaseRating   Phase = "rating"
)

// State is a user's cursor: the phase plus the session it refers to.
type State struct {
	Phase     Phase  `json:"phase"`
	SessionID string `json:"session_id"`
}

// Store persists per-user cursors. Get returns (nil, nil) when the user has
// no consultation-related cursor.
type Store interface {
	Get(ctx context.Context, userID uint) (*State, error)
	Set(ctx context.Context, userID uint, state State) error
	Clear(ctx context.Context, userID uint) error
}
