package repository

import (
	"context"
	"errors"

	apperrors "advisor-marketplace/backend/pkg/errors"
	"advisor-marketplace/backend/internal/models"

	"gorm.io/gorm"
)

type ReviewRepository interface {
	// Create inserts a review; a duplicate for the same session surfaces as
	// a typed AlreadyReviewed.
	Create(ctx context.Context, review *models.Review) error
	GetBySession(ctx context.Context, sessionID string) (*models.Review, error)
	// RatingsByAdvisor returns all ratings ever given to the advisor, for
	// aggregate recomputation.
	RatingsByAdvisor(ctx context.Context, advisorID uint) ([]int, error)
}

type GormReviewRepository struct {
	db *gorm.DB
}

func NewGormReviewRepository(db *gorm.DB) *GormReviewRepository {
	return &GormReviewRepository{db: db}
}

func (r *GormReviewRepository) Create(ctx context.Context, review *models.Review) error {
	err := r.db.WithContext(ctx).Create(review).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.AlreadyReviewed("session has already been rated")
		}
		return apperrors.StoreUnavailable(err.Error())
	}
	return nil
}

func (r *GormReviewRepository) GetBySession(ctx context.Context, sessionID string) (*models.Review, error) {
	var review models.Review
	err := r.db.WithContext(ctx).First(&review, "session_id = ?", sessionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("review not found")
		}
		return nil, apperrors.StoreUnavailable(err.Error())
	}
	return &review, nil
}

func (r *GormReviewRepository) RatingsByAdvisor(ctx context.Context, advisorID uint) ([]int, error) {
	var ratings []int
	err := r.db.WithContext(ctx).
		Model(&models.Review{}).
		Where("advisor_id = ?", advisorID).
		Order("id ASC").
		Pluck("rating", &ratings).Error
	if err != nil {
		return nil, apperrors.StoreUnavailable(err.Error())
	}
	return ratings, nil
}
