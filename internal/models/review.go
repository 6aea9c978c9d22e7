package models

import (
	"time"
)

// Review is the one-to-one client rating of a completed session. The unique
// index on session_id makes a second rating attempt a duplicate-key error.
type Review struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"uniqueIndex:ux_reviews_session" json:"session_id"`
	AdvisorID uint      `gorm:"index:idx_reviews_advisor" json:"advisor_id"`
	ClientID  uint      `json:"client_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
