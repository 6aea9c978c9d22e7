package buffer

import (
	"context"

	"advisor-marketplace/backend/pkg/logger"
)

// FailoverStore prefers the primary (redis) store and degrades to the
// in-process fallback when the primary errors. Degradation is logged, never
// surfaced: a buffer failure must not fail the triggering operation or
// touch the session record.
type FailoverStore struct {
	primary  Store
	fallback Store
	log      *logger.Logger
}

// NewFailoverStore wraps a primary store with an in-process fallback.
func NewFailoverStore(primary, fallback Store, log *logger.Logger) *FailoverStore {
	return &FailoverStore{primary: primary, fallback: fallback, log: log}
}

// Append writes to the primary, degrading to the fallback on error.
func (s *FailoverStore) Append(ctx context.Context, sessionID string, msg Message) error {
	if err := s.primary.Append(ctx, sessionID, msg); err != nil {
		s.log.Warn("buffer degraded to in-process store",
			"op", "append", "session_id", sessionID, "error", err.Error())
		return s.fallback.Append(ctx, sessionID, msg)
	}
	return nil
}

// Drain merges entries from both backings: entries may be split across them
// if the primary failed mid-window. Primary entries come first.
func (s *FailoverStore) Drain(ctx context.Context, sessionID string) ([]Message, error) {
	var merged []Message

	primary, err := s.primary.Drain(ctx, sessionID)
	if err != nil {
		s.log.Warn("buffer degraded to in-process store",
			"op", "drain", "session_id", sessionID, "error", err.Error())
	} else {
		merged = append(merged, primary...)
	}

	fallback, err := s.fallback.Drain(ctx, sessionID)
	if err != nil {
		return merged, nil
	}
	return append(merged, fallback...), nil
}

// Discard drops the session's buffer from both backings.
func (s *FailoverStore) Discard(ctx context.Context, sessionID string) error {
	if err := s.primary.Discard(ctx, sessionID); err != nil {
		s.log.Warn("buffer degraded to in-process store",
			"op", "discard", "session_id", sessionID, "error", err.Error())
	}
	return s.fallback.Discard(ctx, sessionID)
}
