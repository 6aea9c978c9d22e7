package service

import (
	"context"
	"time"

	"advisor-marketplace/backend/internal/models"
	"advisor-marketplace/backend/internal/repository"
	"advisor-marketplace/backend/pkg/logger"
)

// AdvisorService exposes the public advisor directory and advisor
// self-service profile edits. Online status is derived from the
// last-activity timestamp the consultation service maintains.
type AdvisorService struct {
	advisors        repository.AdvisorRepository
	log             *logger.Logger
	onlineThreshold time.Duration
	now             func() time.Time
}

func NewAdvisorService(advisors repository.AdvisorRepository, log *logger.Logger, onlineThreshold time.Duration) *AdvisorService {
	if onlineThreshold == 0 {
		onlineThreshold = 10 * time.Minute
	}
	return &AdvisorService{
		advisors:        advisors,
		log:             log,
		onlineThreshold: onlineThreshold,
		now:             time.Now,
	}
}

// List returns the directory ordered by rating, with derived online flags.
func (s *AdvisorService) List(ctx context.Context, limit, offset int) ([]models.AdvisorResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	profiles, err := s.advisors.ListProfiles(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]models.AdvisorResponse, len(profiles))
	for i := range profiles {
		out[i] = profiles[i].ToResponse(now, s.onlineThreshold)
	}
	return out, nil
}

// Get returns one advisor's public profile.
func (s *AdvisorService) Get(ctx context.Context, userID uint) (*models.AdvisorResponse, error) {
	profile, err := s.advisors.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	resp := profile.ToResponse(s.now(), s.onlineThreshold)
	return &resp, nil
}

// UpdateProfileRequest carries an advisor's self-service edits.
type UpdateProfileRequest struct {
	DisplayName    string `json:"display_name"`
	Bio            string `json:"bio"`
	Specialization string `json:"specialization"`
}

// UpdateSelf applies profile edits for the authenticated advisor. Rating
// and review count are not editable here.
func (s *AdvisorService) UpdateSelf(ctx context.Context, userID uint, req UpdateProfileRequest) (*models.AdvisorResponse, error) {
	fields := map[string]interface{}{}
	if req.DisplayName != "" {
		fields["display_name"] = req.DisplayName
	}
	if req.Bio != "" {
		fields["bio"] = req.Bio
	}
	if req.Specialization != "" {
		fields["specialization"] = req.Specialization
	}
	if len(fields) > 0 {
		if err := s.advisors.UpdateProfile(ctx, userID, fields); err != nil {
			return nil, err
		}
	}
	return s.Get(ctx, userID)
}

// Heartbeat marks the advisor as recently active.
func (s *AdvisorService) Heartbeat(ctx context.Context, userID uint) error {
	return s.advisors.TouchActivity(ctx, userID, s.now())
}
