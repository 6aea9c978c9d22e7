package models

import (
	"time"
)

// Message is one chat message inside an active session. Immutable once
// written. The auto-increment id preserves flush order for buffered
// messages whose timestamps may collide.
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"index:idx_messages_session" json:"session_id"`
	SenderID  uint      `json:"sender_id"`
	Content   string    `json:"content"`
	MediaRef  string    `json:"media_ref,omitempty"`
	SentAt    time.Time `json:"sent_at"`
	CreatedAt time.Time `json:"created_at"`
}
