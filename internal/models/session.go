package models

import (
	"time"
)

// SessionStatus is the lifecycle state of a consultation session
type SessionStatus string

const (
	StatusPending   SessionStatus = "pending"
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusDeclined  SessionStatus = "declined"
	StatusExpired   SessionStatus = "expired"
	StatusCancelled SessionStatus = "cancelled"
)

// Terminal reports whether the status is final. No transition leaves a
// terminal state.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusDeclined, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Open reports whether the session still occupies its participants
// (pending or active).
func (s SessionStatus) Open() bool {
	return s == StatusPending || s == StatusActive
}

// Session is one client-advisor consultation. Rows are never deleted;
// terminal sessions are retained for history and rating.
//
// Two partial unique indexes guarantee at most one open session per client
// and per advisor; their predicates contain commas, which gorm index tags
// split on, so they are created with raw DDL in
// repository.EnsureSessionIndexes. The request_key unique index collapses
// duplicate request submissions within the same time bucket (Postgres
// allows multiple NULLs).
type Session struct {
	ID          string        `gorm:"primaryKey" json:"id"`
	ClientID    uint          `gorm:"index:idx_sessions_client_status" json:"client_id"`
	AdvisorID   uint          `gorm:"index:idx_sessions_advisor_status" json:"advisor_id"`
	Status      SessionStatus `gorm:"index:idx_sessions_client_status;index:idx_sessions_advisor_status;index:idx_sessions_pending_deadline" json:"status"`
	RequestKey  *string       `gorm:"uniqueIndex:ux_sessions_request_key" json:"-"`
	Theme       string        `json:"theme"`
	ExpiresAt   *time.Time    `gorm:"index:idx_sessions_pending_deadline" json:"expires_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	ArchiveID   *string       `json:"archive_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Participant reports whether userID is the client or advisor of the session.
func (s *Session) Participant(userID uint) bool {
	return s.ClientID == userID || s.AdvisorID == userID
}

// Peer returns the other participant's user id.
func (s *Session) Peer(userID uint) uint {
	if userID == s.ClientID {
		return s.AdvisorID
	}
	return s.ClientID
}

// Deadline reports whether the pending deadline has passed at the given
// instant. Sessions without a deadline never expire.
func (s *Session) Deadline(now time.Time) bool {
	return s.ExpiresAt != nil && s.ExpiresAt.Before(now)
}
