package repository

import (
	"context"
	"errors"

	apperrors "advisor-marketplace/backend/pkg/errors"
	"advisor-marketplace/backend/internal/models"

	"gorm.io/gorm"
)

type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	// CreateInOrder persists messages one by one so auto-increment ids
	// preserve the given order (buffer flush relies on this).
	CreateInOrder(ctx context.Context, messages []models.Message) error
	GetBySession(ctx context.Context, sessionID string) ([]models.Message, error)
	GetBySessionPaginated(ctx context.Context, sessionID string, limit, offset int) ([]models.Message, error)
}

type GormMessageRepository struct {
	db *gorm.DB
}

func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{db: db}
}

func (r *GormMessageRepository) Create(ctx context.Context, message *models.Message) error {
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return apperrors.StoreUnavailable(err.Error())
	}
	return nil
}

func (r *GormMessageRepository) CreateInOrder(ctx context.Context, messages []models.Message) error {
	if len(messages) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range messages {
			if err := tx.Create(&messages[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.StoreUnavailable(err.Error())
	}
	return nil
}

func (r *GormMessageRepository) GetBySession(ctx context.Context, sessionID string) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&messages).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.StoreUnavailable(err.Error())
	}
	return messages, nil
}

func (r *GormMessageRepository) GetBySessionPaginated(ctx context.Context, sessionID string, limit, offset int) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.StoreUnavailable(err.Error())
	}
	return messages, nil
}
