package repository

import (
	"context"
	"errors"
	"time"

	apperrors "advisor-marketplace/backend/pkg/errors"
	"advisor-marketplace/backend/internal/models"

	"gorm.io/gorm"
)

type AdvisorRepository interface {
	GetProfile(ctx context.Context, userID uint) (*models.AdvisorProfile, error)
	ListProfiles(ctx context.Context, limit, offset int) ([]models.AdvisorProfile, error)
	Upsert(ctx context.Context, profile *models.AdvisorProfile) error
	UpdateProfile(ctx context.Context, userID uint, fields map[string]interface{}) error
	// UpdateAggregate writes the recomputed rolling rating and review count.
	UpdateAggregate(ctx context.Context, userID uint, rating float64, count int) error
	// TouchActivity bumps the advisor's last-activity timestamp used for
	// online-status derivation.
	TouchActivity(ctx context.Context, userID uint, at time.Time) error
}

type GormAdvisorRepository struct {
	db *gorm.DB
}

func NewGormAdvisorRepository(db *gorm.DB) *GormAdvisorRepository {
	return &GormAdvisorRepository{db: db}
}

func (r *GormAdvisorRepository) GetProfile(ctx context.Context, userID uint) (*models.AdvisorProfile, error) {
	var profile models.AdvisorProfile
	err := r.db.WithContext(ctx).First(&profile, "user_id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("advisor not found")
		}
		return nil, apperrors.StoreUnavailable(err.Error())
	}
	return &profile, nil
}

func (r *GormAdvisorRepository) ListProfiles(ctx context.Context, limit, offset int) ([]models.AdvisorProfile, error) {
	var profiles []models.AdvisorProfile
	err := r.db.WithContext(ctx).
		Order("rating DESC, review_count DESC").
		Limit(limit).
		Offset(offset).
		Find(&profiles).Error
	if err != nil {
		return nil, apperrors.StoreUnavailable(err.Error())
	}
	return profiles, nil
}

func (r *GormAdvisorRepository) Upsert(ctx context.Context, profile *models.AdvisorProfile) error {
	if err := r.db.WithContext(ctx).Save(profile).Error; err != nil {
		return apperrors.StoreUnavailable(err.Error())
	}
	return nil
}

func (r *GormAdvisorRepository) UpdateProfile(ctx context.Context, userID uint, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&models.AdvisorProfile{}).
		Where("user_id = ?", userID).
		Updates(fields)
	if result.Error != nil {
		return apperrors.StoreUnavailable(result.Error.Error())
	}
	if result.RowsAffected == 0 {
		return apperrors.NotFound("advisor not found")
	}
	return nil
}

func (r *GormAdvisorRepository) UpdateAggregate(ctx context.Context, userID uint, rating float64, count int) error {
	return r.UpdateProfile(ctx, userID, map[string]interface{}{
		"rating":       rating,
		"review_count": count,
	})
}

func (r *GormAdvisorRepository) TouchActivity(ctx context.Context, userID uint, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.AdvisorProfile{}).
		Where("user_id = ?", userID).
		Update("last_active_at", at)
	if result.Error != nil {
		return apperrors.StoreUnavailable(result.Error.Error())
	}
	return nil
}
