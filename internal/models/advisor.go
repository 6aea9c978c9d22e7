package models

import (
	"time"
)

// AdvisorProfile is the per-advisor mutable aggregate. Rating and
// ReviewCount are recomputed by the consultation service when a review
// lands; the rest is advisor self-service.
type AdvisorProfile struct {
	UserID         uint      `gorm:"primaryKey" json:"user_id"`
	DisplayName    string    `json:"display_name"`
	Bio            string    `json:"bio"`
	Specialization string    `json:"specialization"`
	Rating         float64   `json:"rating"`
	ReviewCount    int       `json:"review_count"`
	LastActiveAt   time.Time `json:"last_active_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Online reports whether the advisor was active within the threshold.
func (p *AdvisorProfile) Online(now time.Time, threshold time.Duration) bool {
	return now.Sub(p.LastActiveAt) <= threshold
}

// AdvisorResponse is the public view of an advisor profile.
type AdvisorResponse struct {
	UserID         uint    `json:"user_id"`
	DisplayName    string  `json:"display_name"`
	Bio            string  `json:"bio"`
	Specialization string  `json:"specialization"`
	Rating         float64 `json:"rating"`
	ReviewCount    int     `json:"review_count"`
	Online         bool    `json:"online"`
}

// ToResponse converts a profile to its public view.
func (p *AdvisorProfile) ToResponse(now time.Time, onlineThreshold time.Duration) AdvisorResponse {
	return AdvisorResponse{
		UserID:         p.UserID,
		DisplayName:    p.DisplayName,
		Bio:            p.Bio,
		Specialization: p.Specialization,
		Rating:         p.Rating,
		ReviewCount:    p.ReviewCount,
		Online:         p.Online(now, onlineThreshold),
	}
}
